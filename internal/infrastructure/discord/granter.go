package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/zemetsskiy/subgate/internal/domain"
	"github.com/zemetsskiy/subgate/pkg/config"
)

// Granter attaches a configured guild role to a paying member. Resolution
// prefers the stable user ID captured during OAuth; the display-name search
// is a fallback for records that predate it.
type Granter struct {
	session  *discordgo.Session
	guildID  string
	roleName string
	logger   zerolog.Logger
}

func NewGranter(cfg *config.DiscordConfig, logger zerolog.Logger) (*Granter, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &Granter{
		session:  session,
		guildID:  cfg.GuildID,
		roleName: cfg.RoleName,
		logger:   logger.With().Str("component", "role_granter").Logger(),
	}, nil
}

// GrantRole assigns the configured role. userID may be empty, in which case
// the member is resolved by the bare display name (anything after '#' in
// the stored username has to be stripped by the caller's side; GrantRole
// strips defensively as well).
func (g *Granter) GrantRole(userID, displayName string) error {
	memberID := userID
	if memberID == "" {
		name := BareName(displayName)
		member, err := g.findMemberByName(name)
		if err != nil {
			return err
		}
		memberID = member.User.ID
	}

	roleID, err := g.findRoleID()
	if err != nil {
		return err
	}

	if err := g.session.GuildMemberRoleAdd(g.guildID, memberID, roleID); err != nil {
		return fmt.Errorf("failed to add role %s to member %s: %w", g.roleName, memberID, err)
	}

	g.logger.Info().
		Str("member_id", memberID).
		Str("role", g.roleName).
		Msg("Role granted")
	return nil
}

func (g *Granter) findMemberByName(name string) (*discordgo.Member, error) {
	members, err := g.session.GuildMembersSearch(g.guildID, name, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to search guild members: %w", err)
	}

	for _, member := range members {
		if member.User != nil && member.User.Username == name {
			return member, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrMemberNotFound, name)
}

func (g *Granter) findRoleID() (string, error) {
	roles, err := g.session.GuildRoles(g.guildID)
	if err != nil {
		return "", fmt.Errorf("failed to list guild roles: %w", err)
	}

	for _, role := range roles {
		if role.Name == g.roleName {
			return role.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrRoleNotFound, g.roleName)
}

// BareName strips the legacy #discriminator suffix from a stored username.
func BareName(username string) string {
	if i := strings.Index(username, "#"); i >= 0 {
		return username[:i]
	}
	return username
}

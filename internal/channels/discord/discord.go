// Package discord adapts the single owner/channel Discord bot used by the
// scheduling core onto the messenger surfaces the rest of the module talks
// to: permission.Messenger (reaction-based approval), streamer.Surface
// (progressive response editing), and tools.Messenger (bg-fork pings and
// embeds). Adapted from the gateway's multi-tenant internal/channels/discord
// package, trimmed to the single channel/single owner shape spec §2 assumes
// — no pairing flow, no allowlist, no group mention-gating.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/goclaw-sched/internal/permission"
)

const maxMessageLen = 2000

// InboundHandler receives a plain-text message from the owner in the bound
// channel (reactions are handled separately, see handleReactionAdd).
type InboundHandler func(ctx context.Context, content string, messageID string)

// Channel owns one Discord gateway connection scoped to a single guild
// channel and a single trusted owner.
type Channel struct {
	session   *discordgo.Session
	channelID string
	ownerID   string
	botUserID string

	mu      sync.Mutex
	onMsg   InboundHandler
	arbiter *permission.Arbiter

	typingMu    sync.Mutex
	typingUntil time.Time
}

// New creates a Discord session from a bot token. The session is not opened
// until Start is called.
func New(token, channelID, ownerID string) (*Channel, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions

	return &Channel{
		session:   session,
		channelID: channelID,
		ownerID:   ownerID,
	}, nil
}

// SetInboundHandler registers the callback invoked for owner messages in the
// bound channel.
func (c *Channel) SetInboundHandler(h InboundHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = h
}

// SetArbiter wires the permission arbiter whose pending approvals this
// channel's reaction handler resolves.
func (c *Channel) SetArbiter(a *permission.Arbiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arbiter = a
}

// Start opens the gateway connection and begins dispatching events.
func (c *Channel) Start(context.Context) error {
	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleReactionAdd)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID
	slog.Info("discord bot connected", "username", user.Username, "channel_id", c.channelID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(context.Context) error {
	return c.session.Close()
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == c.botUserID {
		return
	}
	if m.ChannelID != c.channelID {
		return
	}
	if m.Author.ID != c.ownerID {
		slog.Debug("discord message from non-owner ignored", "user_id", m.Author.ID)
		return
	}

	c.mu.Lock()
	h := c.onMsg
	c.mu.Unlock()
	if h == nil {
		return
	}
	h(context.Background(), m.Content, m.ID)
}

func (c *Channel) handleReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.ChannelID != c.channelID || r.UserID == c.botUserID || r.UserID != c.ownerID {
		return
	}
	c.mu.Lock()
	arbiter := c.arbiter
	c.mu.Unlock()
	if arbiter == nil {
		return
	}
	arbiter.ResolveApproval(r.MessageID, r.Emoji.Name)
}

// SendApprovalRequest implements permission.Messenger.
func (c *Channel) SendApprovalRequest(ctx context.Context, label string) (string, error) {
	msg, err := c.session.ChannelMessageSend(c.channelID, label)
	if err != nil {
		return "", err
	}
	for _, emoji := range []string{permission.Approve, permission.Deny, permission.Always} {
		_ = c.session.MessageReactionAdd(c.channelID, msg.ID, emoji)
	}
	return msg.ID, nil
}

// EditMessage implements both permission.Messenger and streamer.Surface.
func (c *Channel) EditMessage(ctx context.Context, messageID, content string) error {
	_, err := c.session.ChannelMessageEdit(c.channelID, messageID, truncate(content))
	return err
}

// SendMessage implements streamer.Surface.
func (c *Channel) SendMessage(ctx context.Context, content string) (string, error) {
	msg, err := c.session.ChannelMessageSend(c.channelID, truncate(content))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// SendTyping implements streamer.Surface, debounced to Discord's own 10s
// typing expiry so repeated streamer ticks don't spam gateway calls.
func (c *Channel) SendTyping(ctx context.Context) error {
	c.typingMu.Lock()
	now := time.Now()
	if now.Before(c.typingUntil) {
		c.typingMu.Unlock()
		return nil
	}
	c.typingUntil = now.Add(8 * time.Second)
	c.typingMu.Unlock()
	return c.session.ChannelTyping(c.channelID)
}

// SendPlain implements tools.Messenger (ping_user).
func (c *Channel) SendPlain(ctx context.Context, text string) error {
	_, err := c.session.ChannelMessageSend(c.channelID, truncate(text))
	return err
}

// SendEmbed implements tools.Messenger (discord_embed). Field order is not
// guaranteed — Discord embeds render fields in map iteration order here,
// same trade-off the original made for a single free-form dict payload.
func (c *Channel) SendEmbed(ctx context.Context, fields map[string]string) error {
	embed := &discordgo.MessageEmbed{}
	for k, v := range fields {
		if k == "footer" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: v}
			continue
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: k, Value: v})
	}
	_, err := c.session.ChannelMessageSendEmbed(c.channelID, embed)
	return err
}

// truncate splits at the last newline before the 2000-char Discord limit,
// same chunk-boundary heuristic as the streamer's own flush.
func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	cut := maxMessageLen
	if idx := strings.LastIndexByte(s[:maxMessageLen], '\n'); idx > maxMessageLen/2 {
		cut = idx + 1
	}
	return s[:cut]
}

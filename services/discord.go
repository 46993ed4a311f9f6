package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"analystbot/config"
	"analystbot/logger"
	"analystbot/models"
)

// DiscordService is a second frontend over the analyst: prefix-triggered
// Discord messages become chat requests, answers and cited source titles go
// back to the channel.
type DiscordService struct {
	session       *discordgo.Session
	analyst       *Analyst
	commandPrefix string
	enabled       bool
	startTime     time.Time
}

// NewDiscordService creates a new Discord service instance
func NewDiscordService(analyst *Analyst, cfg config.DiscordConfig) *DiscordService {
	commandPrefix := cfg.CommandPrefix
	if commandPrefix == "" {
		commandPrefix = "!analyst "
	}

	service := &DiscordService{
		analyst:       analyst,
		commandPrefix: commandPrefix,
		startTime:     time.Now(),
	}

	if cfg.Token == "" {
		logger.Info("Discord frontend disabled: DISCORD_BOT_TOKEN not set")
		return service
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		logger.Error("error creating Discord session", "error", err)
		return service
	}

	service.session = session

	session.AddHandler(func(s *discordgo.Session, event *discordgo.Ready) {
		logger.Info("Discord bot online", "username", event.User.Username, "guilds", len(event.Guilds))
	})
	session.AddHandler(service.messageCreate)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	service.enabled = true
	logger.Info("Discord frontend initialized", "prefix", commandPrefix)

	return service
}

// IsEnabled reports whether the bot is configured
func (d *DiscordService) IsEnabled() bool {
	return d.enabled
}

// Start opens the websocket connection
func (d *DiscordService) Start() error {
	if !d.enabled {
		return fmt.Errorf("Discord service not enabled (missing bot token)")
	}
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("error opening Discord connection: %w", err)
	}
	logger.Info("Discord bot started", "prefix", d.commandPrefix)
	return nil
}

// Stop closes the Discord connection
func (d *DiscordService) Stop() error {
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

// messageCreate handles incoming Discord messages
func (d *DiscordService) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot {
		return
	}
	if !strings.HasPrefix(m.Content, d.commandPrefix) {
		return
	}

	prompt := strings.TrimSpace(m.Content[len(d.commandPrefix):])
	if prompt == "" {
		d.sendMessage(s, m.ChannelID, fmt.Sprintf("Please provide a question after `%s`", strings.TrimSpace(d.commandPrefix)))
		return
	}

	s.ChannelTyping(m.ChannelID)

	// One conversation per user+channel so threads reuse stored history
	conversationID := fmt.Sprintf("discord_%s_%s", m.Author.ID, m.ChannelID)

	resp, err := d.analyst.Process(context.Background(), models.ChatRequest{
		Prompt:              prompt,
		ConversationID:      conversationID,
		IncludeResearchData: true,
	})
	if err != nil {
		var generr *models.GenerationError
		if !errors.As(err, &generr) {
			logger.Error("Discord chat failed", "conversation_id", conversationID, "error", err)
			d.sendMessage(s, m.ChannelID, ApologyMessage)
			return
		}
		// Apologetic response is already populated on generation failure
	}

	d.sendMessage(s, m.ChannelID, formatDiscordReply(resp))

	logger.Info("Discord chat handled",
		"user", m.Author.Username,
		"channel", m.ChannelID,
		"conversation_id", conversationID,
	)
}

// formatDiscordReply appends cited source titles under the answer
func formatDiscordReply(resp models.ChatResponse) string {
	if len(resp.Sources) == 0 {
		return resp.Response
	}

	var b strings.Builder
	b.WriteString(resp.Response)
	b.WriteString("\n\nSources:")
	for _, src := range resp.Sources {
		b.WriteString("\n- ")
		b.WriteString(src.Title)
		if src.URL != "" {
			b.WriteString(" <")
			b.WriteString(src.URL)
			b.WriteString(">")
		}
	}
	return b.String()
}

// sendMessage sends a message to a channel, splitting at Discord's limit
func (d *DiscordService) sendMessage(s *discordgo.Session, channelID, content string) {
	const maxLen = 2000
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			chunk = chunk[:maxLen]
			if i := strings.LastIndex(chunk, "\n"); i > maxLen/2 {
				chunk = chunk[:i]
			}
		}
		if _, err := s.ChannelMessageSend(channelID, chunk); err != nil {
			logger.Error("failed to send Discord message", "channel", channelID, "error", err)
			return
		}
		content = strings.TrimPrefix(content, chunk)
		content = strings.TrimLeft(content, "\n")
	}
}

// GetStatus returns the status of the Discord frontend
func (d *DiscordService) GetStatus() map[string]interface{} {
	status := map[string]interface{}{
		"prefix": d.commandPrefix,
		"uptime": time.Since(d.startTime).String(),
	}
	if d.enabled {
		status["status"] = "enabled"
	} else {
		status["status"] = "disabled"
		status["error"] = "DISCORD_BOT_TOKEN not set"
	}
	return status
}

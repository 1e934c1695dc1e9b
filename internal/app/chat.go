package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"linguatutor/internal/util"
	"linguatutor/pkg/domain"
)

// historyWindow is how many recent messages are replayed to the LLM.
const historyWindow = 20

// apologyReply is returned verbatim when the LLM is unavailable so the
// conversation keeps a well-formed transcript.
const apologyReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// ChatInput carries one user turn.
type ChatInput struct {
	ConversationID string
	Text           string
	PrimaryLang    string
	SecondaryLang  string
	Mode           domain.ConversationMode
	UserID         string
}

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	Conversation domain.Conversation
	UserMessage  domain.Message
	Reply        domain.Message
}

// ChatTurn persists the user's message, asks the LLM for a reply in the
// conversation's primary language, and persists the assistant message.
// A missing conversation id starts a new conversation owned by the user.
func (a *App) ChatTurn(ctx context.Context, in ChatInput) (ChatResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return ChatResult{}, &ValidationError{Field: "message", Reason: "must not be empty"}
	}

	conv, err := a.resolveConversation(in)
	if err != nil {
		return ChatResult{}, err
	}

	now := time.Now().UTC()
	userMsg := domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Lang:           conv.SecondaryLang,
		Text:           text,
		CreatedAt:      now,
	}
	userMsg.ID, err = a.store.AppendMessage(userMsg)
	if err != nil {
		return ChatResult{}, err
	}

	history, err := a.store.ListMessages(conv.ID, historyWindow)
	if err != nil {
		return ChatResult{}, err
	}

	replyText, err := a.llm.Reply(ctx, history, conv.PrimaryLang, conv.Mode)
	if err != nil {
		slog.Warn("llm reply failed, using fallback", "conversation_id", conv.ID, "error", err)
		replyText = apologyReply
	}

	reply := domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Lang:           conv.PrimaryLang,
		Text:           replyText,
		CreatedAt:      time.Now().UTC(),
	}
	reply.ID, err = a.store.AppendMessage(reply)
	if err != nil {
		return ChatResult{}, err
	}

	return ChatResult{Conversation: conv, UserMessage: userMsg, Reply: reply}, nil
}

// resolveConversation loads an existing conversation (enforcing
// ownership) or creates a new one with derived languages.
func (a *App) resolveConversation(in ChatInput) (domain.Conversation, error) {
	if in.ConversationID != "" {
		conv, ok, err := a.store.GetConversation(in.ConversationID)
		if err != nil {
			return domain.Conversation{}, err
		}
		if !ok || (conv.UserID != "" && conv.UserID != in.UserID) {
			return domain.Conversation{}, ErrNotFound
		}
		return conv, nil
	}

	primary, secondary := a.deriveLanguages(in)
	mode := in.Mode
	if mode != domain.ModeTutor {
		mode = domain.ModeChat
	}
	conv := domain.Conversation{
		ID:            util.NewID(),
		PrimaryLang:   primary,
		SecondaryLang: secondary,
		Mode:          mode,
		UserID:        in.UserID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.store.CreateConversation(conv); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// deriveLanguages picks the language pair for a new conversation:
// explicit request fields win, then stored preferences, then defaults.
// An identical pair forces the secondary to a different language.
func (a *App) deriveLanguages(in ChatInput) (primary, secondary string) {
	primary = strings.ToLower(strings.TrimSpace(in.PrimaryLang))
	secondary = strings.ToLower(strings.TrimSpace(in.SecondaryLang))

	if (primary == "" || secondary == "") && in.UserID != "" {
		if user, ok, err := a.store.GetUserByID(in.UserID); err == nil && ok {
			if primary == "" {
				primary = user.PreferredPrimaryLang
			}
			if secondary == "" {
				secondary = user.PreferredSecondaryLang
			}
		}
	}
	if primary == "" {
		primary = a.cfg.DefaultPrimaryLang
	}
	if secondary == "" {
		secondary = a.cfg.DefaultSecondaryLang
	}
	if primary == secondary {
		if primary == a.cfg.DefaultSecondaryLang {
			secondary = a.cfg.DefaultPrimaryLang
		} else {
			secondary = a.cfg.DefaultSecondaryLang
		}
	}
	return primary, secondary
}

// ConversationHistory returns a conversation and its messages, enforcing
// ownership isolation.
func (a *App) ConversationHistory(conversationID, userID string) (domain.Conversation, []domain.Message, error) {
	conv, ok, err := a.store.GetConversation(conversationID)
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	if !ok || (conv.UserID != "" && conv.UserID != userID) {
		return domain.Conversation{}, nil, ErrNotFound
	}
	msgs, err := a.store.ListMessages(conversationID, 0)
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	return conv, msgs, nil
}

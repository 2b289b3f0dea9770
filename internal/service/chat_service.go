package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// Chat intents recognised by the assistant.
const (
	IntentPricing  = "pricing"
	IntentTrial    = "trial"
	IntentContact  = "contact"
	IntentGreeting = "greeting"
	IntentFallback = "fallback"
)

var (
	classLevelPattern = regexp.MustCompile(`(?:class|grade|kelas)\s*(\d{1,2})`)
	wordPattern       = regexp.MustCompile(`[a-z0-9]+`)

	intentKeywords = []struct {
		intent string
		words  []string
		phrase []string
	}{
		{IntentPricing, []string{"price", "prices", "pricing", "cost", "costs", "fee", "fees", "harga", "biaya", "package", "pack"}, []string{"how much"}},
		{IntentTrial, []string{"trial", "free", "assessment", "coba", "gratis"}, []string{"try it"}},
		{IntentContact, []string{"contact", "phone", "email", "whatsapp", "call", "kontak"}, []string{"talk to"}},
		{IntentGreeting, []string{"hi", "hello", "hey", "halo", "hai"}, []string{"good morning", "good afternoon", "good evening"}},
	}
)

type ChatSessionStore interface {
	Save(ctx context.Context, session *models.ChatSession, ttl time.Duration) error
	Get(ctx context.Context, id string) (*models.ChatSession, error)
	Evict(ctx context.Context, maxSessions int, ttl time.Duration, now time.Time) (int, error)
}

type pricingReader interface {
	Get(ctx context.Context) (*models.Pricing, error)
}

// ChatConfig bounds chat sessions.
type ChatConfig struct {
	SessionTTL  time.Duration
	MaxSessions int
	MaxMessages int
	SiteName    string
	ContactHint string
}

// ChatService runs the site assistant. Sessions live in Redis with an idle TTL and a
// least-recently-used bound.
type ChatService struct {
	store     ChatSessionStore
	pricing   pricingReader
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ChatConfig
	now       func() time.Time
}

// NewChatService constructs a ChatService. A nil store makes every call return 503.
func NewChatService(store ChatSessionStore, pricing pricingReader, validate *validator.Validate, logger *zap.Logger, cfg ChatConfig) *ChatService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 50
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "TutorHub"
	}
	if cfg.ContactHint == "" {
		cfg.ContactHint = "Send us a message through the contact form and our team will reply within one working day."
	}
	return &ChatService{store: store, pricing: pricing, validator: validate, logger: logger, cfg: cfg, now: time.Now}
}

// Start opens a session with a welcome message and trims the session pool.
func (s *ChatService) Start(ctx context.Context) (*models.ChatSession, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "chat is unavailable")
	}
	now := s.now().UTC()
	session := &models.ChatSession{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		LastSeenAt: now,
		Messages: []models.ChatMessage{{
			Role:   models.ChatRoleAssistant,
			Text:   fmt.Sprintf("Hi! I am the %s assistant. Ask me about prices, a free trial class or how to reach us.", s.cfg.SiteName),
			Intent: IntentGreeting,
			At:     now,
		}},
	}
	if err := s.store.Save(ctx, session, s.cfg.SessionTTL); err != nil {
		return nil, appErrors.Internal(err, "failed to start chat session")
	}
	evicted, err := s.store.Evict(ctx, s.cfg.MaxSessions, s.cfg.SessionTTL, now)
	if err != nil {
		s.logger.Warn("chat session eviction failed", zap.Error(err))
	} else if evicted > 0 {
		s.logger.Debug("chat sessions evicted", zap.Int("count", evicted))
	}
	return session, nil
}

// Get returns a live session and refreshes its idle timer.
func (s *ChatService) Get(ctx context.Context, id string) (*models.ChatSession, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	session.LastSeenAt = s.now().UTC()
	if err := s.store.Save(ctx, session, s.cfg.SessionTTL); err != nil {
		s.logger.Warn("failed to refresh chat session", zap.String("session_id", id), zap.Error(err))
	}
	return session, nil
}

// Send records a user message and the assistant's answer.
func (s *ChatService) Send(ctx context.Context, id string, req dto.ChatMessageRequest) (*dto.ChatReply, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid chat message")
	}
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	intent := DetectIntent(req.Text)
	reply := models.ChatMessage{Role: models.ChatRoleAssistant, Text: s.answer(ctx, intent, req.Text), Intent: intent, At: now}
	session.Messages = append(session.Messages, models.ChatMessage{Role: models.ChatRoleUser, Text: req.Text, At: now}, reply)
	if excess := len(session.Messages) - s.cfg.MaxMessages; excess > 0 {
		session.Messages = append([]models.ChatMessage(nil), session.Messages[excess:]...)
	}
	session.LastSeenAt = now
	if err := s.store.Save(ctx, session, s.cfg.SessionTTL); err != nil {
		return nil, appErrors.Internal(err, "failed to save chat session")
	}
	return &dto.ChatReply{SessionID: session.ID, Reply: reply, Messages: len(session.Messages)}, nil
}

func (s *ChatService) load(ctx context.Context, id string) (*models.ChatSession, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "chat is unavailable")
	}
	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "chat session not found or expired")
		}
		return nil, appErrors.Internal(err, "failed to load chat session")
	}
	return session, nil
}

// DetectIntent classifies a message by keyword. The first matching intent wins.
func DetectIntent(text string) string {
	lower := strings.ToLower(text)
	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(lower, -1) {
		words[w] = struct{}{}
	}
	for _, candidate := range intentKeywords {
		for _, phrase := range candidate.phrase {
			if strings.Contains(lower, phrase) {
				return candidate.intent
			}
		}
		for _, w := range candidate.words {
			if _, ok := words[w]; ok {
				return candidate.intent
			}
		}
	}
	return IntentFallback
}

func (s *ChatService) answer(ctx context.Context, intent, text string) string {
	switch intent {
	case IntentPricing:
		return s.pricingAnswer(ctx, text)
	case IntentTrial:
		return "You can book a free assessment session from the Free Trial page. Tell us the class level and subjects and we will schedule a short online meeting with a tutor."
	case IntentContact:
		return s.cfg.ContactHint
	case IntentGreeting:
		return "Hello! How can I help you today? You can ask about prices, the free trial or how to contact us."
	}
	return "Sorry, I did not quite get that. I can help with prices, the free trial class or contacting our team."
}

func (s *ChatService) pricingAnswer(ctx context.Context, text string) string {
	if s.pricing == nil {
		return s.cfg.ContactHint
	}
	pricing, err := s.pricing.Get(ctx)
	if err != nil {
		s.logger.Debug("pricing unavailable for chat", zap.Error(err))
		return "Our prices are being updated right now. " + s.cfg.ContactHint
	}

	if m := classLevelPattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		level, _ := strconv.Atoi(m[1])
		if single, err := BuildQuote(pricing, level, models.PackageSingle); err == nil {
			pack, _ := BuildQuote(pricing, level, models.PackageStarterPack)
			answer := fmt.Sprintf("For class %d a single session costs %s.", level, formatMoney(single.Amount, single.Currency))
			if pack != nil {
				answer += fmt.Sprintf(" The starter pack is %d sessions for %s, valid for %d days.", pack.Sessions, formatMoney(pack.Amount, pack.Currency), pack.ValidityDays)
			}
			return answer
		}
	}

	r := pricing.ClassRanges
	return fmt.Sprintf(
		"Single sessions cost %s (class 2-5), %s (class 6-8), %s (class 9-10) and %s (class 11-12). The starter pack is %d sessions for %s, valid for %d days.",
		formatMoney(r.Primary.PricePerSession, pricing.Currency),
		formatMoney(r.Middle.PricePerSession, pricing.Currency),
		formatMoney(r.Secondary.PricePerSession, pricing.Currency),
		formatMoney(r.Senior.PricePerSession, pricing.Currency),
		pricing.StarterPack.Sessions,
		formatMoney(pricing.StarterPack.Price, pricing.Currency),
		pricing.StarterPack.ValidityDays,
	)
}

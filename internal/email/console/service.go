package consolemail

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/edusignal/retention-backend/internal/email"
)

// Service logs messages instead of delivering them. Used in development
// and in tests; sent messages are kept for inspection.
type Service struct {
	DisableOutput bool

	mu   sync.Mutex
	sent []email.Message
}

var _ email.Gateway = (*Service)(nil)

func NewService() *Service {
	return &Service{}
}

func (svc *Service) SendTemplated(_ context.Context, msg email.Message) (string, error) {
	svc.mu.Lock()
	svc.sent = append(svc.sent, msg)
	svc.mu.Unlock()

	if !svc.DisableOutput {
		log.Printf("email to %s <%s>: %s\n%s", msg.ToName, msg.To, msg.Subject, msg.Body)
	}
	return uuid.NewString(), nil
}

// SentMessages returns a copy of everything sent so far.
func (svc *Service) SentMessages() []email.Message {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]email.Message, len(svc.sent))
	copy(out, svc.sent)
	return out
}

package sendgridmail

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/edusignal/retention-backend/internal/email"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type service struct {
	key  string
	from *sgmail.Email
}

var _ email.Gateway = (*service)(nil)

func NewService(key, fromName, fromEmail string) email.Gateway {
	return &service{
		key:  key,
		from: sgmail.NewEmail(fromName, fromEmail),
	}
}

func (svc *service) SendTemplated(ctx context.Context, msg email.Message) (string, error) {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return "", fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.Body))

	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", email.ErrGatewayUnavailable, err)
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%w: status %d", email.ErrGatewayUnavailable, res.StatusCode)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("sendgrid rejected message for %s: status %d", msg.To, res.StatusCode)
	}

	if ids := res.Headers["X-Message-Id"]; len(ids) > 0 && ids[0] != "" {
		return ids[0], nil
	}
	return uuid.NewString(), nil
}

package notification

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/sapliy/subscription-notifier/internal/subscription"
)

// Message templates keyed by urgency tier. Tier selection is exact:
// 0 is today, 1 is tomorrow, 2-3 is soon, 4 and above is the early
// reminder.
var messageTemplates = map[string]string{
	"expiration_today": `URGENT! Hello {{.CustomerName}}

Your {{.ServiceName}} subscription expires TODAY!
Expires: today, {{.EndDate}}
Renewal price: ${{.Price}}

Renew NOW to keep your service running.

Reply to this message right away.

Thank you for choosing TV Services!`,

	"expiration_tomorrow": `Hello {{.CustomerName}}

Your {{.ServiceName}} subscription expires TOMORROW.
Expires: {{.EndDate}}
Renewal price: ${{.Price}}
Time left: 1 day

Don't miss out on your favorite entertainment!

To renew, reply to this message.

Thank you for choosing TV Services!`,

	"expiration_soon": `Hello {{.CustomerName}}

Your {{.ServiceName}} subscription is about to expire:
Expires: {{.EndDate}}
Renewal price: ${{.Price}}
Time left: {{.DaysNotice}} days

To renew, reply to this message or contact us.

Thank you for choosing TV Services!`,

	"expiration_early": `Hello {{.CustomerName}}

Reminder: your {{.ServiceName}} subscription expires soon:
Expires: {{.EndDate}}
Renewal price: ${{.Price}}
Time left: {{.DaysNotice}} days

There is still plenty of time to renew without interruption.

To renew, reply to this message.

Thank you for choosing TV Services!`,

	"renewal_confirmation": `Hello {{.CustomerName}}!

Your {{.ServiceName}} subscription has been renewed successfully.
New expiration date: {{.EndDate}}
Status: active

Thank you for staying with us!

Thank you for choosing TV Services!`,
}

type messageData struct {
	CustomerName string
	ServiceName  string
	EndDate      string
	Price        string
	DaysNotice   int
}

// ComposeExpiration builds the reminder text for one subscription and
// notice tier. daysNotice must not be negative; the caller clamps.
func ComposeExpiration(snap subscription.Snapshot, daysNotice int) (string, error) {
	if daysNotice < 0 {
		return "", fmt.Errorf("days notice must not be negative, got %d", daysNotice)
	}

	var tier string
	switch {
	case daysNotice == 0:
		tier = "expiration_today"
	case daysNotice == 1:
		tier = "expiration_tomorrow"
	case daysNotice <= 3:
		tier = "expiration_soon"
	default:
		tier = "expiration_early"
	}
	return render(tier, snap, daysNotice)
}

// ComposeRenewal builds the confirmation text sent after a renewal.
func ComposeRenewal(snap subscription.Snapshot) (string, error) {
	return render("renewal_confirmation", snap, 0)
}

func render(tier string, snap subscription.Snapshot, daysNotice int) (string, error) {
	content, ok := messageTemplates[tier]
	if !ok {
		return "", fmt.Errorf("unknown message template %q", tier)
	}

	tmpl, err := template.New(tier).Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", tier, err)
	}

	data := messageData{
		CustomerName: snap.CustomerName,
		ServiceName:  snap.ServiceName,
		EndDate:      snap.EndDate.Format("02/01/2006"),
		Price:        fmt.Sprintf("%.2f", snap.Price),
		DaysNotice:   daysNotice,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", tier, err)
	}
	return buf.String(), nil
}

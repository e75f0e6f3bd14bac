package survey

import (
	"encoding/json"
	"fmt"
	"html"

	"github.com/contabhub/onety/internal/notify"
	"github.com/contabhub/onety/internal/outbox"
)

// Messages monta o conteúdo dos convites em cada canal.
type Messages struct {
	PublicURL  string
	WebhookURL string
}

// Link devolve o endereço público de resposta.
func (m Messages) Link(kind Kind, token string) string {
	if kind == KindFranchisee {
		return m.PublicURL + "/franqueado/" + token
	}
	return m.PublicURL + "/" + token
}

func (m Messages) email(s Survey, subj Subject) notify.Message {
	link := m.Link(s.Kind, s.Token)
	body := fmt.Sprintf(`<p>Olá, %s!</p>
<p>A %s quer saber como está sendo a sua experiência. Leva menos de um minuto:</p>
<p><a href="%s">Responder pesquisa de satisfação</a></p>`,
		html.EscapeString(subj.Name), html.EscapeString(subj.CompanyName), html.EscapeString(link))
	return notify.Message{
		To:      subj.Email,
		Subject: "Pesquisa de satisfação - " + subj.CompanyName,
		Body:    body,
	}
}

func (m Messages) whatsapp(s Survey, subj Subject) notify.Message {
	return notify.Message{
		To: subj.Phone,
		Body: fmt.Sprintf("Olá, %s! A %s quer saber sua opinião. De 0 a 10, quanto você nos recomendaria? Responda aqui: %s",
			subj.Name, subj.CompanyName, m.Link(s.Kind, s.Token)),
	}
}

func (m Messages) webhook(s Survey, subj Subject) notify.Message {
	data, _ := json.Marshal(map[string]any{
		"evento":          "pesquisa_satisfacao_criada",
		"tipo":            s.Kind,
		"pesquisa_id":     s.ID,
		"empresa_id":      s.CompanyID,
		"destinatario_id": subj.ID,
		"nome":            subj.Name,
		"email":           subj.Email,
		"telefone":        subj.Phone,
		"link":            m.Link(s.Kind, s.Token),
	})
	return notify.Message{To: m.WebhookURL, Data: data}
}

// Deliveries monta as entregas enfileiradas junto com a pesquisa.
// withWhatsApp=false é usado pelo disparo inteligente, que envia o WhatsApp de forma síncrona.
func (m Messages) Deliveries(withWhatsApp bool) DeliveryBuilder {
	return func(s Survey, subj Subject) []outbox.Delivery {
		var out []outbox.Delivery
		if subj.Email != "" {
			out = append(out, delivery(s, outbox.ChannelEmail, m.email(s, subj)))
		}
		if withWhatsApp && subj.Phone != "" {
			out = append(out, delivery(s, outbox.ChannelWhatsApp, m.whatsapp(s, subj)))
		}
		if m.WebhookURL != "" {
			out = append(out, delivery(s, outbox.ChannelWebhook, m.webhook(s, subj)))
		}
		return out
	}
}

func delivery(s Survey, channel string, msg notify.Message) outbox.Delivery {
	payload, _ := json.Marshal(msg)
	return outbox.Delivery{
		SurveyKind:  string(s.Kind),
		SurveyID:    s.ID,
		Channel:     channel,
		Destination: msg.To,
		Payload:     payload,
	}
}

// Package push delivers web push notifications for task lifecycle
// events: a child submitting work, a parent settling or rejecting it,
// and clarification messages in either direction.
package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/mvaldes/chorebank/internal/model"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON sent to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// Service sends web push notifications signed with a VAPID key pair.
type Service struct {
	publicKey  string
	privateKey string
}

func NewService(publicKey, privateKey string) *Service {
	return &Service{
		publicKey:  publicKey,
		privateKey: privateKey,
	}
}

// VAPIDPublicKey returns the public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send delivers one notification to one subscription.
func (s *Service) Send(sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      "mailto:noreply@chorebank.app",
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// subscriptionStore is the slice of the push store the notifier needs.
type subscriptionStore interface {
	List() ([]model.PushSubscription, error)
	Delete(id int64) error
}

// Notifier fans a payload out to every registered subscription and
// prunes the ones the push service reports as gone.
type Notifier struct {
	service *Service
	subs    subscriptionStore
	logger  *slog.Logger
}

func NewNotifier(service *Service, subs subscriptionStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		service: service,
		subs:    subs,
		logger:  logger.With("component", "push"),
	}
}

// Broadcast sends the payload to all subscriptions. Delivery failures
// are logged, not returned; a dead device must not fail a settlement.
func (n *Notifier) Broadcast(payload Payload) {
	if n == nil || n.service == nil {
		return
	}
	subs, err := n.subs.List()
	if err != nil {
		n.logger.Error("list subscriptions", "error", err)
		return
	}
	for i := range subs {
		sub := subs[i]
		go func() {
			err := n.service.Send(&sub, payload)
			if errors.Is(err, ErrExpired) {
				if derr := n.subs.Delete(sub.ID); derr != nil {
					n.logger.Error("prune expired subscription", "id", sub.ID, "error", derr)
				}
				return
			}
			if err != nil {
				n.logger.Warn("push delivery failed", "id", sub.ID, "error", err)
			}
		}()
	}
}

// TaskSubmitted notifies parents that a task is waiting for review.
func (n *Notifier) TaskSubmitted(t *model.Task) {
	n.Broadcast(Payload{
		Title: "Task ready for review",
		Body:  fmt.Sprintf("%q was marked done and needs your approval", t.Title),
		URL:   "/tasks/" + t.ID,
		Tag:   "task-" + t.ID,
	})
}

// TaskSettled notifies that a task was approved and its reward paid out.
func (n *Notifier) TaskSettled(t *model.Task, child *model.Child) {
	n.Broadcast(Payload{
		Title: "Task approved",
		Body:  fmt.Sprintf("%s earned the reward for %q", child.Name, t.Title),
		URL:   "/tasks/" + t.ID,
		Tag:   "task-" + t.ID,
	})
}

// TaskRejected notifies that a task was sent back.
func (n *Notifier) TaskRejected(t *model.Task) {
	n.Broadcast(Payload{
		Title: "Task sent back",
		Body:  fmt.Sprintf("%q was not approved and needs another try", t.Title),
		URL:   "/tasks/" + t.ID,
		Tag:   "task-" + t.ID,
	})
}

func clarificationTitle(sender model.Sender) string {
	if sender == model.SenderParent {
		return "Question about a task"
	}
	return "Answer on a task"
}

// Clarification notifies about a new message on a task thread.
func (n *Notifier) Clarification(t *model.Task, sender model.Sender) {
	n.Broadcast(Payload{
		Title: clarificationTitle(sender),
		Body:  fmt.Sprintf("New message on %q", t.Title),
		URL:   "/tasks/" + t.ID,
		Tag:   "task-msg-" + t.ID,
	})
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.Bytes())

	return publicKey, privateKey, nil
}

package quillsign

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// The resource wrappers below are deliberately thin pass-throughs: they
// shape URLs and payloads and hand everything to the pipeline, which owns
// caching, auth, retries and circuit breaking.

// Envelope is a signing envelope.
type Envelope struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is a file attached to an envelope.
type Document struct {
	ID          string `json:"id"`
	EnvelopeID  string `json:"envelope_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Signer is a signing party on an envelope.
type Signer struct {
	ID         string `json:"id"`
	EnvelopeID string `json:"envelope_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Status     string `json:"status"`
	Order      int    `json:"order"`
}

// Template is a reusable envelope blueprint.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Webhook is an event subscription.
type Webhook struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// SigningSession is the credential set issued for one signer, returned by
// SignersService.CreateSession. Feed Tokens() to NewSignerSession.
type SigningSession struct {
	SigningURL       string    `json:"signing_url"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Tokens returns the session credentials as a TokenPair.
func (s *SigningSession) Tokens() TokenPair {
	return TokenPair{
		AccessToken:      s.AccessToken,
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt,
	}
}

func decodeJSON(resp *Response, v interface{}) error {
	if v == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("quillsign: decode response: %w", err)
	}
	return nil
}

// EnvelopesService wraps the /envelopes resource.
type EnvelopesService struct {
	p *Pipeline
}

// CreateEnvelopeParams is the payload for Create.
type CreateEnvelopeParams struct {
	Subject string `json:"subject"`
	Message string `json:"message,omitempty"`
}

// List returns all envelopes.
func (s *EnvelopesService) List(ctx context.Context) ([]Envelope, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodGet, Path: "/envelopes"})
	if err != nil {
		return nil, err
	}
	var out struct {
		Envelopes []Envelope `json:"envelopes"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Envelopes, nil
}

// Get returns one envelope.
func (s *EnvelopesService) Get(ctx context.Context, id string) (*Envelope, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodGet, Path: "/envelopes/" + id})
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := decodeJSON(resp, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Create creates a draft envelope.
func (s *EnvelopesService) Create(ctx context.Context, params CreateEnvelopeParams) (*Envelope, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodPost, Path: "/envelopes", Body: params})
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := decodeJSON(resp, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Send moves an envelope out of draft and notifies its signers.
func (s *EnvelopesService) Send(ctx context.Context, id string) (*Envelope, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodPost, Path: "/envelopes/" + id + "/send"})
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := decodeJSON(resp, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Delete removes an envelope.
func (s *EnvelopesService) Delete(ctx context.Context, id string) error {
	_, err := s.p.Do(ctx, &Request{Method: http.MethodDelete, Path: "/envelopes/" + id})
	return err
}

// DocumentsService wraps envelope documents.
type DocumentsService struct {
	p *Pipeline
}

// UploadDocumentParams is the payload for Upload. Content is base64-encoded
// on the wire.
type UploadDocumentParams struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

// List returns the documents of an envelope.
func (s *DocumentsService) List(ctx context.Context, envelopeID string) ([]Document, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodGet, Path: "/envelopes/" + envelopeID + "/documents"})
	if err != nil {
		return nil, err
	}
	var out struct {
		Documents []Document `json:"documents"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Get returns one document's metadata.
func (s *DocumentsService) Get(ctx context.Context, id string) (*Document, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodGet, Path: "/documents/" + id})
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := decodeJSON(resp, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Upload attaches a document to an envelope.
func (s *DocumentsService) Upload(ctx context.Context, envelopeID string, params UploadDocumentParams) (*Document, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodPost, Path: "/envelopes/" + envelopeID + "/documents", Body: params})
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := decodeJSON(resp, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes a document from its envelope.
func (s *DocumentsService) Delete(ctx context.Context, id string) error {
	_, err := s.p.Do(ctx, &Request{Method: http.MethodDelete, Path: "/documents/" + id})
	return err
}

// SignersService wraps envelope signers and signing sessions.
type SignersService struct {
	p *Pipeline
}

// AddSignerParams is the payload for Add.
type AddSignerParams struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Order int    `json:"order,omitempty"`
}

// List returns the signers of an envelope.
func (s *SignersService) List(ctx context.Context, envelopeID string) ([]Signer, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodGet, Path: "/envelopes/" + envelopeID + "/signers"})
	if err != nil {
		return nil, err
	}
	var out struct {
		Signers []Signer `json:"signers"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Signers, nil
}

// Add adds a signer to an envelope.
func (s *SignersService) Add(ctx context.Context, envelopeID string, params AddSignerParams) (*Signer, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodPost, Path: "/envelopes/" + envelopeID + "/signers", Body: params})
	if err != nil {
		return nil, err
	}
	var signer Signer
	if err := decodeJSON(resp, &signer); err != nil {
		return nil, err
	}
	return &signer, nil
}

// CreateSession issues a signing URL plus the short-lived signer session
// tokens for one signer.
func (s *SignersService) CreateSession(ctx context.Context, signerID string) (*SigningSession, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodPost, Path: "/signers/" + signerID + "/sessions"})
	if err != nil {
		return nil, err
	}
	var session SigningSession
	if err := decodeJSON(resp, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// TemplatesService wraps the /templates resource.
type TemplatesService struct {
	p *Pipeline
}

// List returns all templates.
func (s *TemplatesService) List(ctx context.Context) ([]Template, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodGet, Path: "/templates"})
	if err != nil {
		return nil, err
	}
	var out struct {
		Templates []Template `json:"templates"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

// Get returns one template.
func (s *TemplatesService) Get(ctx context.Context, id string) (*Template, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodGet, Path: "/templates/" + id})
	if err != nil {
		return nil, err
	}
	var tpl Template
	if err := decodeJSON(resp, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// WebhooksService wraps the /webhooks resource.
type WebhooksService struct {
	p *Pipeline
}

// CreateWebhookParams is the payload for Create.
type CreateWebhookParams struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// List returns all webhook subscriptions.
func (s *WebhooksService) List(ctx context.Context) ([]Webhook, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodGet, Path: "/webhooks"})
	if err != nil {
		return nil, err
	}
	var out struct {
		Webhooks []Webhook `json:"webhooks"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Webhooks, nil
}

// Create registers a webhook subscription.
func (s *WebhooksService) Create(ctx context.Context, params CreateWebhookParams) (*Webhook, error) {
	resp, err := s.p.Do(ctx, &Request{Method: http.MethodPost, Path: "/webhooks", Body: params})
	if err != nil {
		return nil, err
	}
	var wh Webhook
	if err := decodeJSON(resp, &wh); err != nil {
		return nil, err
	}
	return &wh, nil
}

// Delete removes a webhook subscription.
func (s *WebhooksService) Delete(ctx context.Context, id string) error {
	_, err := s.p.Do(ctx, &Request{Method: http.MethodDelete, Path: "/webhooks/" + id})
	return err
}

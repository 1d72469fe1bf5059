package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MaxDocumentSize is the largest body kept in a Document.
// Longer bodies are truncated.
const MaxDocumentSize = 10 * 1024 * 1024 // 10 MB

// Document is a successfully fetched page.
type Document struct {
	// URL is the address that was requested.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the Content-Type response header.
	ContentType string `json:"content_type,omitempty"`

	// Body is the raw response body.
	Body []byte `json:"-"`

	// Hash is the SHA-256 of Body, used by the ledger for change detection.
	Hash string `json:"hash"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`
}

// NewDocument builds a Document, truncating the body and computing its hash.
func NewDocument(url string, status int, contentType string, body []byte, fetchedAt time.Time) *Document {
	d := &Document{
		URL:         url,
		StatusCode:  status,
		ContentType: contentType,
		Body:        body,
		FetchedAt:   fetchedAt,
	}
	d.truncate()
	d.computeHash()
	return d
}

func (d *Document) truncate() {
	if len(d.Body) > MaxDocumentSize {
		d.Body = d.Body[:MaxDocumentSize]
	}
}

func (d *Document) computeHash() {
	if len(d.Body) == 0 {
		d.Hash = ""
		return
	}
	sum := sha256.Sum256(d.Body)
	d.Hash = hex.EncodeToString(sum[:])
}

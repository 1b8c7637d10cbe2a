package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docserve/pkg/docid"
)

// DocumentRevision records one saved version of a document.
type DocumentRevision struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	RevisionUUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"revisionUuid"`

	// Document identification
	Namespace string `gorm:"type:varchar(255);not null;index:idx_doc_revisions_key" json:"namespace"`
	DocID     string `gorm:"type:varchar(255);not null;index:idx_doc_revisions_key" json:"docid"`

	// Revision is the sequence number of this save, starting at 1.
	Revision    int    `gorm:"not null" json:"revision"`
	ContentHash string `gorm:"type:varchar(64);index:idx_doc_revisions_hash" json:"contentHash"` // SHA-256
	Message     string `gorm:"type:text" json:"message"`
}

// TableName specifies the table name.
func (DocumentRevision) TableName() string {
	return "document_revisions"
}

// BeforeCreate hook to ensure RevisionUUID is set.
func (dr *DocumentRevision) BeforeCreate(tx *gorm.DB) error {
	if dr.RevisionUUID == uuid.Nil {
		dr.RevisionUUID = uuid.New()
	}
	return nil
}

// Key returns the document key of the revision.
func (dr *DocumentRevision) Key() docid.Key {
	return docid.Key{Namespace: dr.Namespace, DocID: dr.DocID}
}

// Create inserts the revision, numbering it after the latest revision of
// the same document.
func (dr *DocumentRevision) Create(db *gorm.DB) error {
	if err := validation.ValidateStruct(dr,
		validation.Field(&dr.Namespace, validation.Required),
		validation.Field(&dr.DocID, validation.Required),
		validation.Field(&dr.ContentHash, validation.Required, validation.Length(64, 64)),
	); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		latest, err := latestRevision(tx, dr.Namespace, dr.DocID)
		if err != nil {
			return err
		}
		dr.Revision = latest + 1
		return tx.Create(dr).Error
	})
}

func latestRevision(db *gorm.DB, namespace, docID string) (int, error) {
	var latest DocumentRevision
	err := db.Where("namespace = ? AND doc_id = ?", namespace, docID).
		Order("revision DESC").
		First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return latest.Revision, nil
}

// GetRevisions retrieves the revisions of a document, newest first. A
// limit of zero returns all revisions.
func GetRevisions(db *gorm.DB, key docid.Key, limit int) ([]DocumentRevision, error) {
	var revisions []DocumentRevision
	q := db.Where("namespace = ? AND doc_id = ?", key.Namespace, key.DocID).
		Order("revision DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&revisions).Error
	return revisions, err
}

// GetRevisionsByContentHash retrieves all revisions with a content hash.
func GetRevisionsByContentHash(db *gorm.DB, contentHash string) ([]DocumentRevision, error) {
	var revisions []DocumentRevision
	err := db.Where("content_hash = ?", contentHash).
		Order("created_at DESC").
		Find(&revisions).Error
	return revisions, err
}

// RevisionLedger records document saves in the database.
type RevisionLedger struct {
	DB *gorm.DB
}

// RecordRevision stores a revision row for a saved document.
func (l *RevisionLedger) RecordRevision(ctx context.Context, key docid.Key, contentHash, message string) error {
	rev := &DocumentRevision{
		Namespace:   key.Namespace,
		DocID:       key.DocID,
		ContentHash: contentHash,
		Message:     message,
	}
	return rev.Create(l.DB.WithContext(ctx))
}

// History returns up to limit revisions of key, newest first.
func (l *RevisionLedger) History(ctx context.Context, key docid.Key, limit int) ([]DocumentRevision, error) {
	return GetRevisions(l.DB.WithContext(ctx), key, limit)
}

package service

import (
	"mime"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/evault/evault/internal/apperr"
	"github.com/evault/evault/internal/document"
	"github.com/gabriel-vasile/mimetype"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
	maxCommentLen     = 2000
	maxTags           = 32
)

// FileInput is an uploaded file as received by the handler.
type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadInput is the metadata and bytes of a new document.
type UploadInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	ExpiryDate  *time.Time `json:"expiryDate"`
	File        FileInput  `json:"-"`
}

// MetadataInput changes the descriptive fields of a document. Nil fields are
// left as they are.
type MetadataInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	Tags        *[]string  `json:"tags"`
	ExpiryDate  *time.Time `json:"expiryDate"`
	ClearExpiry bool       `json:"clearExpiry"`
}

func validationErr(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Validation(err.Error())
}

func (in *UploadInput) normalize() (document.Category, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Tags = document.NormalizeTags(in.Tags)
	if err := validation.ValidateStruct(in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(1, maxTitleLen)),
		validation.Field(&in.Description, validation.RuneLength(0, maxDescriptionLen)),
		validation.Field(&in.Tags, validation.Length(0, maxTags)),
	); err != nil {
		return "", validationErr(err)
	}
	cat, err := document.ParseCategory(in.Category)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrValidation, "category: must be one of Legal, Financial, Personal, Business, Other", err)
	}
	return cat, nil
}

func (in *MetadataInput) normalize() (*document.Category, error) {
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		in.Title = &t
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		in.Description = &d
	}
	if in.Tags != nil {
		tags := document.NormalizeTags(*in.Tags)
		in.Tags = &tags
	}
	if err := validation.ValidateStruct(in,
		validation.Field(&in.Title, validation.NilOrNotEmpty, validation.RuneLength(1, maxTitleLen)),
		validation.Field(&in.Description, validation.RuneLength(0, maxDescriptionLen)),
		validation.Field(&in.Tags, validation.By(func(v interface{}) error {
			if tags, _ := v.(*[]string); tags != nil && len(*tags) > maxTags {
				return validation.NewError("validation_tags_too_many", "too many tags")
			}
			return nil
		})),
	); err != nil {
		return nil, validationErr(err)
	}
	if in.Category == nil {
		return nil, nil
	}
	cat, err := document.ParseCategory(*in.Category)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, "category: must be one of Legal, Financial, Personal, Business, Other", err)
	}
	return &cat, nil
}

// checkFile enforces presence, size and type, and returns the effective
// media type. A blank or generic declared type is replaced by the sniffed one.
func (s *Manager) checkFile(f FileInput) (string, error) {
	if len(f.Data) == 0 {
		return "", apperr.Validation("file is required")
	}
	if int64(len(f.Data)) > s.cfg.MaxUploadBytes {
		return "", apperr.Validation("file exceeds the maximum upload size")
	}
	ct := mediaType(f.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = mediaType(mimetype.Detect(f.Data).String())
	}
	if !slices.Contains(s.cfg.AllowedTypes, ct) {
		return "", apperr.Validation("invalid file type: " + ct)
	}
	return ct, nil
}

func mediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(v)
	}
	return mt
}

func checkComment(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.Validation("comment cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxCommentLen {
		return "", apperr.Validation("comment is too long")
	}
	return text, nil
}

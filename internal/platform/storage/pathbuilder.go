package storage

import (
	"fmt"
	"strings"
)

// AttachmentPathParams identify where a listing attachment lives.
type AttachmentPathParams struct {
	ListingID string
	Field     string
	FileName  string
}

// BuildAttachmentPath composes the object key for a listing attachment.
// Attachments are grouped per listing and keyed by the schema field that
// accepted the upload, so a re-upload replaces the previous object.
func BuildAttachmentPath(params AttachmentPathParams) (string, error) {
	listingID, err := validateSegment("listingID", params.ListingID)
	if err != nil {
		return "", err
	}
	field, err := validateSegment("field", params.Field)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("listings/%s/attachments/%s/%s", listingID, field, fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}

package services

import (
	"strings"

	domain "github.com/bourseville/listings-api/internal/domain"
)

// canManage reports whether the actor may operate on the listing.
// Admins manage everything; everyone else only their own listings.
// Unauthenticated actors manage nothing.
func canManage(actor Actor, listing domain.Listing) bool {
	id := strings.TrimSpace(actor.ID)
	if actor.Admin {
		return true
	}
	if id == "" {
		return false
	}
	return id == strings.TrimSpace(listing.OwnerID)
}

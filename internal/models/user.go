package models

import "time"

// User is a bot user. UserID doubles as the Telegram chat ID.
type User struct {
	UserID        int64     `json:"user_id"`
	UserName      string    `json:"user_name"`
	Timezone      string    `json:"timezone"`
	ContactName   string    `json:"contact_name"`
	ContactEmail  string    `json:"contact_email"`
	ContactChatID *int64    `json:"contact_chat_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Location resolves the user's timezone, falling back to local time.
func (u *User) Location() *time.Location {
	if u.Timezone != "" {
		if loc, err := time.LoadLocation(u.Timezone); err == nil {
			return loc
		}
	}
	return time.Local
}

// HasContact reports whether an emergency contact is configured.
func (u *User) HasContact() bool {
	return u.ContactName != "" && (u.ContactEmail != "" || u.ContactChatID != nil)
}

// EmergencyContact is who gets alerted after repeated missed doses.
type EmergencyContact struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	ChatID *int64 `json:"chat_id"`
}

// Contact returns the user's emergency contact details.
func (u *User) Contact() EmergencyContact {
	return EmergencyContact{
		Name:   u.ContactName,
		Email:  u.ContactEmail,
		ChatID: u.ContactChatID,
	}
}

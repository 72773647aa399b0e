// Package history holds the browsing-history domain model shared by the
// store, the merge engine and the wire protocol.
package history

import (
	"errors"
	"fmt"
)

// SyncStatus is the local bookkeeping state of an entry.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSynced  SyncStatus = "synced"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	return s == StatusPending || s == StatusSynced
}

// PageContent is extracted page text attached to an entry after capture.
type PageContent struct {
	Content     string `json:"content"`
	Summary     string `json:"summary"`
	ExtractedAt int64  `json:"extractedAt"`
}

// HistoryEntry is a single browsing visit.
//
// URL, Title, VisitTime, VisitID, ReferringVisitID, Transition and the
// device provenance fields are fixed at creation. Only SyncStatus,
// LastModified, Deleted and PageContent change afterwards.
type HistoryEntry struct {
	URL              string       `json:"url"`
	Title            string       `json:"title"`
	VisitTime        int64        `json:"visitTime"`
	VisitID          string       `json:"visitId"`
	ReferringVisitID string       `json:"referringVisitId,omitempty"`
	Transition       string       `json:"transition,omitempty"`
	DeviceID         string       `json:"deviceId"`
	Platform         string       `json:"platform"`
	UserAgent        string       `json:"userAgent"`
	BrowserName      string       `json:"browserName"`
	BrowserVersion   string       `json:"browserVersion"`
	SyncStatus       SyncStatus   `json:"syncStatus"`
	LastModified     int64        `json:"lastModified"`
	Deleted          bool         `json:"deleted,omitempty"`
	PageContent      *PageContent `json:"pageContent,omitempty"`
}

// DeviceInfo describes one known device.
type DeviceInfo struct {
	DeviceID       string `json:"deviceId"`
	Platform       string `json:"platform"`
	BrowserName    string `json:"browserName"`
	BrowserVersion string `json:"browserVersion"`
	UserAgent      string `json:"userAgent"`
	LastSeen       int64  `json:"lastSeen,omitempty"`
}

var (
	ErrMissingVisitID  = errors.New("entry has no visitId")
	ErrMissingURL      = errors.New("entry has no url")
	ErrMissingDeviceID = errors.New("entry has no deviceId")
)

// Validate checks the invariants every stored entry must satisfy.
func (e *HistoryEntry) Validate() error {
	switch {
	case e.VisitID == "":
		return ErrMissingVisitID
	case e.URL == "":
		return fmt.Errorf("visit %s: %w", e.VisitID, ErrMissingURL)
	case e.DeviceID == "":
		return fmt.Errorf("visit %s: %w", e.VisitID, ErrMissingDeviceID)
	case !e.SyncStatus.Valid():
		return fmt.Errorf("visit %s: invalid sync status %q", e.VisitID, e.SyncStatus)
	}
	return nil
}

// StampProvenance copies the device fields from d onto e.
func (e *HistoryEntry) StampProvenance(d DeviceInfo) {
	e.DeviceID = d.DeviceID
	e.Platform = d.Platform
	e.UserAgent = d.UserAgent
	e.BrowserName = d.BrowserName
	e.BrowserVersion = d.BrowserVersion
}

// Device returns the DeviceInfo implied by the entry's provenance fields.
func (e *HistoryEntry) Device() DeviceInfo {
	return DeviceInfo{
		DeviceID:       e.DeviceID,
		Platform:       e.Platform,
		BrowserName:    e.BrowserName,
		BrowserVersion: e.BrowserVersion,
		UserAgent:      e.UserAgent,
	}
}

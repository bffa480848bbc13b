package model

import "gorm.io/gorm"

// CredentialAuditEntry records one credential fetch by a host agent: who asked,
// for which agent and instance, and when. It never contains secret material.
type CredentialAuditEntry struct {
	gorm.Model

	RequestID      string `json:"request_id" gorm:"not null"`
	ToolboxID      uint   `json:"toolbox_id" gorm:"not null"`
	AgentID        uint   `json:"agent_id" gorm:"not null"`
	ToolInstanceID uint   `json:"tool_instance_id" gorm:"not null"`
	Kind           string `json:"kind"`
}

// SecretRecord holds one encrypted secret for the local secret store backend.
// Only ciphertext is stored; the data key never touches the database.
type SecretRecord struct {
	gorm.Model

	Ref        string `gorm:"uniqueIndex;not null"`
	Ciphertext []byte `gorm:"not null"`
}

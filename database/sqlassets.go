package sqlassets

import _ "embed"

//go:embed schema/core/profiles.sql
var ProfilesSQL string

//go:embed schema/core/agencies.sql
var AgenciesSQL string

//go:embed schema/core/claim_requests.sql
var ClaimRequestsSQL string

//go:embed schema/core/labor_requests.sql
var LaborRequestsSQL string

//go:embed schema/core/messaging.sql
var MessagingSQL string

//go:embed schema/core/compliance_documents.sql
var ComplianceDocumentsSQL string

//go:embed schema/core/audit_log.sql
var AuditLogSQL string

// CoreSchemaSQL lists the DDL assets in dependency order.
// profiles first, then agencies, then everything referencing them.
var CoreSchemaSQL = []string{
	ProfilesSQL,
	AgenciesSQL,
	ClaimRequestsSQL,
	LaborRequestsSQL,
	MessagingSQL,
	ComplianceDocumentsSQL,
	AuditLogSQL,
}

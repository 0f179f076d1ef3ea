package fhirmodels

// Identifier and code systems used across the PCM platform.

// PCM organization types.
const (
	SystemOrgType = "http://fhir.health.gov.il/cs/pcm-org-type"

	OrgTypeParent          = "parent-org"
	OrgTypeServiceProvider = "service-provider"
	OrgTypeSource          = "source"
	OrgTypePCM             = "pcm"
)

// Identifier systems.
const (
	SystemConsentID  = "http://pcm.fhir.health.gov.il/identifier/pcm-consent-id"
	SystemNationalID = "http://fhir.health.gov.il/identifier/il-national-id"
	SystemCatalogID  = "http://pcm.fhir.health.gov.il/identifier/pcm-healthcareservice-catalog-id"
)

// Extensions.
const (
	ExtApplicableCertificates = "http://pcm.fhir.health.gov.il/StructureDefinition/ext-applicable-certificates"
	ExtPCMService             = "http://pcm.fhir.health.gov.il/StructureDefinition/ext-pcm-service"
	ExtBasedOnCanonical       = "http://pcm.fhir.health.gov.il/StructureDefinition/ext-based-on-canonical-healthcareservice"

	// ExtThumbprintField is the nested extension url carrying a certificate
	// thumbprint inside ExtApplicableCertificates.
	ExtThumbprintField = "thumbprint"
)

// Meta tags distinguishing catalog templates from SP-owned instances.
const (
	SystemMetaTag = "http://pcm.fhir.health.gov.il/cs/pcm-meta-tag"

	TagCatalog  = "catalog"
	TagInstance = "instance"
)

// Consent actor roles per v3-ParticipationType: IRCP is the information
// recipient (the requesting SP), CST the custodian (a Data Source).
const (
	SystemParticipationType = "http://terminology.hl7.org/CodeSystem/v3-ParticipationType"

	RoleRequestor = "IRCP"
	RoleCustodian = "CST"
)

// Consent status values.
const (
	ConsentProposed = "proposed"
	ConsentActive   = "active"
	ConsentInactive = "inactive"
	ConsentRejected = "rejected"
)

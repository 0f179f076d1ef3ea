package fhir

import "time"

// CapabilityStatement represents the FHIR CapabilityStatement served at
// /metadata.
type CapabilityStatement struct {
	ResourceType   string            `json:"resourceType"`
	Status         string            `json:"status"`
	Date           string            `json:"date"`
	Kind           string            `json:"kind"`
	FHIRVersion    string            `json:"fhirVersion"`
	Format         []string          `json:"format"`
	Implementation *CSImplementation `json:"implementation,omitempty"`
	Rest           []CSRest          `json:"rest"`
}

type CSImplementation struct {
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type CSRest struct {
	Mode     string       `json:"mode"`
	Resource []CSResource `json:"resource"`
	Security *CSSecurity  `json:"security,omitempty"`
}

type CSResource struct {
	Type        string          `json:"type"`
	Interaction []CSInteraction `json:"interaction"`
	SearchParam []CSSearchParam `json:"searchParam,omitempty"`
	SearchInclude []string      `json:"searchInclude,omitempty"`
}

type CSInteraction struct {
	Code string `json:"code"`
}

type CSSearchParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type CSSecurity struct {
	CORS    bool              `json:"cors"`
	Service []CodeableConcept `json:"service,omitempty"`
}

// NewCapabilityStatement creates the server's capability statement.
func NewCapabilityStatement(baseURL string, resources []CSResource) *CapabilityStatement {
	return &CapabilityStatement{
		ResourceType: "CapabilityStatement",
		Status:       "active",
		Date:         time.Now().UTC().Format("2006-01-02"),
		Kind:         "instance",
		FHIRVersion:  "4.0.1",
		Format:       []string{"json"},
		Implementation: &CSImplementation{
			Description: "Patient Consent Manager FHIR R4 Server",
			URL:         baseURL,
		},
		Rest: []CSRest{
			{
				Mode:     "server",
				Resource: resources,
				Security: &CSSecurity{
					Service: []CodeableConcept{
						{
							Coding: []Coding{
								{
									System:  "http://terminology.hl7.org/CodeSystem/restful-security-service",
									Code:    "SMART-on-FHIR",
									Display: "SMART on FHIR",
								},
							},
							Text: "OAuth2 client credentials with mTLS holder-of-key",
						},
					},
				},
			},
		},
	}
}

// ResourceCapability creates a CSResource with the interactions this server
// supports (no delete; resources are retired by deactivation).
func ResourceCapability(resourceType string, searchParams []CSSearchParam, includes []string) CSResource {
	return CSResource{
		Type: resourceType,
		Interaction: []CSInteraction{
			{Code: "read"},
			{Code: "search-type"},
			{Code: "create"},
			{Code: "update"},
		},
		SearchParam:   searchParams,
		SearchInclude: includes,
	}
}

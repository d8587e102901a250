package reportapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var contractDocument []byte

// Schema names used to check response bodies.
const (
	SchemaReport             = "Report"
	SchemaReportList         = "ReportList"
	SchemaReportFileList     = "ReportFileList"
	SchemaUploadTicket       = "UploadTicket"
	SchemaStatusUpdateResult = "StatusUpdateResult"
	SchemaDownloadLink       = "DownloadLink"
	SchemaRetryResult        = "RetryResult"
)

// Contract checks response bodies against the embedded OpenAPI document so
// that drift in the server's payloads fails loudly instead of decoding into
// zero values.
type Contract struct {
	doc *openapi3.T
}

func LoadContract(ctx context.Context) (*Contract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(contractDocument)
	if err != nil {
		return nil, fmt.Errorf("load api contract: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate api contract: %w", err)
	}
	return &Contract{doc: doc}, nil
}

// ValidateResponse checks a raw JSON body against the named schema.
func (c *Contract) ValidateResponse(schema string, body []byte) error {
	ref, ok := c.doc.Components.Schemas[schema]
	if !ok || ref == nil || ref.Value == nil {
		return fmt.Errorf("unknown contract schema %q", schema)
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return fmt.Errorf("decode %s body: %w", schema, err)
	}
	if err := ref.Value.VisitJSON(value); err != nil {
		return fmt.Errorf("%s does not match contract: %w", schema, err)
	}
	return nil
}

package resource

import (
	"encoding/xml"
	"fmt"
	"strings"
)

type PatchOperation string

const (
	PatchReplace PatchOperation = "replace"
	PatchAdd     PatchOperation = "add"
	PatchRemove  PatchOperation = "remove"
)

type PatchOp struct {
	Operation PatchOperation
	Selector  string
	Value     string
}

// Patch is an XML diff document applied to a single resource with PATCH.
type Patch struct {
	ResourceType string
	Ops          []PatchOp
}

func NewPatch(resourceType string) *Patch {
	return &Patch{ResourceType: strings.TrimSpace(resourceType)}
}

func (p *Patch) Replace(field string, value string) *Patch {
	return p.with(PatchReplace, field, value)
}

func (p *Patch) Add(field string, value string) *Patch {
	return p.with(PatchAdd, field, value)
}

func (p *Patch) Remove(field string) *Patch {
	return p.with(PatchRemove, field, "")
}

func (p *Patch) with(op PatchOperation, field string, value string) *Patch {
	p.Ops = append(p.Ops, PatchOp{
		Operation: op,
		Selector:  p.ResourceType + "/" + strings.TrimSpace(field),
		Value:     value,
	})
	return p
}

type xmlPatchOp struct {
	XMLName xml.Name
	Sel     string `xml:"sel,attr"`
	Value   string `xml:",chardata"`
}

type xmlDiff struct {
	XMLName xml.Name     `xml:"diff"`
	Ops     []xmlPatchOp `xml:",any"`
}

// Encode renders the patch as a diff document.
func (p *Patch) Encode() ([]byte, error) {
	if p == nil || p.ResourceType == "" {
		return nil, fmt.Errorf("resource: patch resource type is required")
	}
	if len(p.Ops) == 0 {
		return nil, fmt.Errorf("resource: patch has no operations")
	}
	doc := xmlDiff{}
	for _, op := range p.Ops {
		doc.Ops = append(doc.Ops, xmlPatchOp{
			XMLName: xml.Name{Local: string(op.Operation)},
			Sel:     op.Selector,
			Value:   op.Value,
		})
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

type xmlWebhookEndpoint struct {
	XMLName          xml.Name `xml:"WebhookEndpoint"`
	Name             string   `xml:"Name"`
	URL              string   `xml:"Url"`
	Format           string   `xml:"Format,omitempty"`
	TechnicalContact string   `xml:"TechnicalContact,omitempty"`
	Status           string   `xml:"Status,omitempty"`
}

// EncodeWebhookEndpoint renders the provisioning document for an endpoint.
func EncodeWebhookEndpoint(endpoint *WebhookEndpoint) ([]byte, error) {
	if endpoint == nil || strings.TrimSpace(endpoint.URL) == "" {
		return nil, fmt.Errorf("resource: webhook endpoint url is required")
	}
	body, err := xml.Marshal(xmlWebhookEndpoint{
		Name:             strings.TrimSpace(endpoint.Name),
		URL:              strings.TrimSpace(endpoint.URL),
		Format:           strings.TrimSpace(endpoint.Format),
		TechnicalContact: strings.TrimSpace(endpoint.TechnicalContact),
		Status:           string(endpoint.Status),
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

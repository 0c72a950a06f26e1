// Package ingest decodes configuration and consumption documents.
//
// Two encodings are accepted for each document: the XML layout used by the
// upstream provisioning system (listaRecursos, listaCategorias,
// listaClientes, consumo) and a JSON layout mirroring the domain models.
// Clients and consumptions with an invalid NIT are skipped and counted as
// rejected; any other malformed value fails the whole document.
package ingest

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/cloudbill/catalog"
	"github.com/xraph/cloudbill/client"
	"github.com/xraph/cloudbill/consumption"
	"github.com/xraph/cloudbill/types"
)

// Format is a document encoding.
type Format string

const (
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// DetectFormat picks the encoding from a content type, falling back to the
// first non-space byte of data.
func DetectFormat(contentType string, data []byte) Format {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "json"):
		return FormatJSON
	case strings.Contains(ct, "xml"):
		return FormatXML
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatXML
}

// Document is a decoded configuration document.
type Document struct {
	Resources  []*catalog.Resource `json:"resources"`
	Categories []*catalog.Category `json:"categories"`
	Clients    []*client.Client    `json:"clients"`
}

// Counts summarizes what a document carried.
type Counts struct {
	Resources            int `json:"resources"`
	Categories           int `json:"categories"`
	Configurations       int `json:"configurations"`
	Clients              int `json:"clients"`
	Instances            int `json:"instances"`
	RejectedClients      int `json:"rejected_clients,omitempty"`
	Consumptions         int `json:"consumptions,omitempty"`
	RejectedConsumptions int `json:"rejected_consumptions,omitempty"`
}

// ParseConfiguration decodes a configuration document.
func ParseConfiguration(r io.Reader, format Format) (*Document, Counts, error) {
	var doc *Document
	var rejected int
	var err error

	switch format {
	case FormatJSON:
		doc, rejected, err = decodeConfigurationJSON(r)
	default:
		doc, rejected, err = decodeConfigurationXML(r)
	}
	if err != nil {
		return nil, Counts{}, err
	}
	if err := normalizeDocument(doc); err != nil {
		return nil, Counts{}, err
	}

	counts := Counts{
		Resources:       len(doc.Resources),
		Categories:      len(doc.Categories),
		Clients:         len(doc.Clients),
		RejectedClients: rejected,
	}
	for _, c := range doc.Categories {
		counts.Configurations += len(c.Configurations)
	}
	for _, c := range doc.Clients {
		counts.Instances += len(c.Instances)
	}
	return doc, counts, nil
}

// ParseConsumptions decodes a consumption document. The first
// "dd/mm/yyyy[ hh:mm]" found in each date field is kept as
// "dd/mm/yyyy hh:mm"; fields without one keep their raw text and will never
// fall inside a billing period.
func ParseConsumptions(r io.Reader, format Format) ([]consumption.Record, Counts, error) {
	var recs []consumption.Record
	var rejected int
	var err error

	switch format {
	case FormatJSON:
		recs, rejected, err = decodeConsumptionsJSON(r)
	default:
		recs, rejected, err = decodeConsumptionsXML(r)
	}
	if err != nil {
		return nil, Counts{}, err
	}
	return recs, Counts{Consumptions: len(recs), RejectedConsumptions: rejected}, nil
}

// NormalizeRecord validates a consumption record and normalizes its NIT and
// timestamp.
func NormalizeRecord(rec consumption.Record) (consumption.Record, error) {
	rec.NIT = client.NormalizeNIT(rec.NIT)
	rec.DateTime = normalizeTimestamp(rec.DateTime)
	if err := Validate(rec); err != nil {
		return rec, err
	}
	if rec.TimeHours.IsNegative() {
		return rec, &Error{Field: "time_hours", Message: "Must be greater than or equal to 0"}
	}
	return rec, nil
}

func normalizeTimestamp(s string) string {
	if ts, ok := types.ExtractTimestamp(s); ok {
		return ts
	}
	return strings.TrimSpace(s)
}

func normalizeDay(s string) string {
	if d, ok := types.ExtractDay(s); ok {
		return d
	}
	return ""
}

// XML decoding

func decodeConfigurationXML(r io.Reader) (*Document, int, error) {
	var x xmlDocument
	if err := xml.NewDecoder(r).Decode(&x); err != nil {
		return nil, 0, &Error{Field: "document", Message: "malformed XML: " + err.Error()}
	}

	doc := &Document{}
	for i, xr := range x.Resources {
		field := fmt.Sprintf("listaRecursos[%d]", i)
		rid, err := parseID(field+".id", xr.ID)
		if err != nil {
			return nil, 0, err
		}
		value, err := parseDecimal(field+".valorXhora", xr.ValuePerHour)
		if err != nil {
			return nil, 0, err
		}
		doc.Resources = append(doc.Resources, &catalog.Resource{
			ID:           rid,
			Name:         strings.TrimSpace(xr.Name),
			Abbreviation: strings.TrimSpace(xr.Abbreviation),
			Metric:       strings.TrimSpace(xr.Metric),
			Type:         catalog.ResourceType(strings.TrimSpace(xr.Type)),
			ValuePerHour: value,
		})
	}

	for i, xc := range x.Categories {
		field := fmt.Sprintf("listaCategorias[%d]", i)
		cid, err := parseID(field+".id", xc.ID)
		if err != nil {
			return nil, 0, err
		}
		cat := &catalog.Category{
			ID:          cid,
			Name:        strings.TrimSpace(xc.Name),
			Description: strings.TrimSpace(xc.Description),
			Workload:    strings.TrimSpace(xc.Workload),
		}
		for j, xcfg := range xc.Configurations {
			cfgField := fmt.Sprintf("%s.listaConfiguraciones[%d]", field, j)
			cfgID, err := parseID(cfgField+".id", xcfg.ID)
			if err != nil {
				return nil, 0, err
			}
			cfg := catalog.Configuration{
				ID:          cfgID,
				Name:        strings.TrimSpace(xcfg.Name),
				Description: strings.TrimSpace(xcfg.Description),
			}
			for k, xcr := range xcfg.Resources {
				crField := fmt.Sprintf("%s.recursosConfiguracion[%d]", cfgField, k)
				rid, err := parseID(crField+".id", xcr.ID)
				if err != nil {
					return nil, 0, err
				}
				qty, err := parseDecimal(crField, xcr.Quantity)
				if err != nil {
					return nil, 0, err
				}
				cfg.Resources = append(cfg.Resources, catalog.ConfigurationResource{ResourceID: rid, Quantity: qty})
			}
			cat.Configurations = append(cat.Configurations, cfg)
		}
		doc.Categories = append(doc.Categories, cat)
	}

	rejected := 0
	for i, xc := range x.Clients {
		nit := client.NormalizeNIT(xc.NIT)
		if !client.ValidNIT(nit) {
			rejected++
			continue
		}
		field := fmt.Sprintf("listaClientes[%d]", i)
		c := &client.Client{
			NIT:      nit,
			Name:     strings.TrimSpace(xc.Name),
			Username: strings.TrimSpace(xc.Username),
			Password: strings.TrimSpace(xc.Password),
			Address:  strings.TrimSpace(xc.Address),
			Email:    strings.TrimSpace(xc.Email),
		}
		for j, xi := range xc.Instances {
			instField := fmt.Sprintf("%s.listaInstancias[%d]", field, j)
			iid, err := parseID(instField+".id", xi.ID)
			if err != nil {
				return nil, 0, err
			}
			cfgID, err := parseID(instField+".idConfiguracion", xi.ConfigurationID)
			if err != nil {
				return nil, 0, err
			}
			c.Instances = append(c.Instances, client.Instance{
				ID:              iid,
				ConfigurationID: cfgID,
				Name:            strings.TrimSpace(xi.Name),
				StartDate:       xi.StartDate,
				Status:          client.InstanceStatus(strings.TrimSpace(xi.Status)),
				EndDate:         xi.EndDate,
			})
		}
		doc.Clients = append(doc.Clients, c)
	}
	return doc, rejected, nil
}

func decodeConsumptionsXML(r io.Reader) ([]consumption.Record, int, error) {
	var x xmlConsumptions
	if err := xml.NewDecoder(r).Decode(&x); err != nil {
		return nil, 0, &Error{Field: "document", Message: "malformed XML: " + err.Error()}
	}

	recs := make([]consumption.Record, 0, len(x.Consumptions))
	rejected := 0
	for i, xc := range x.Consumptions {
		nit := firstNonEmpty(xc.NITClient, xc.NIT)
		if !client.ValidNIT(client.NormalizeNIT(nit)) {
			rejected++
			continue
		}
		field := fmt.Sprintf("consumo[%d]", i)
		iid, err := parseID(field+".idInstancia", firstNonEmpty(xc.InstanceID, xc.ID))
		if err != nil {
			return nil, 0, err
		}
		hours, err := parseDecimal(field+".tiempo", xc.Time)
		if err != nil {
			return nil, 0, err
		}
		rec, err := NormalizeRecord(consumption.Record{
			NIT:        nit,
			InstanceID: iid,
			TimeHours:  hours,
			DateTime:   xc.DateTime,
		})
		if err != nil {
			return nil, 0, prefixed(field, err)
		}
		recs = append(recs, rec)
	}
	return recs, rejected, nil
}

// JSON decoding

type jsonConsumptions struct {
	Consumptions []consumption.Record `json:"consumptions"`
}

func decodeConfigurationJSON(r io.Reader) (*Document, int, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, 0, &Error{Field: "document", Message: "malformed JSON: " + err.Error()}
	}

	kept := doc.Clients[:0]
	rejected := 0
	for _, c := range doc.Clients {
		if c == nil {
			continue
		}
		c.NIT = client.NormalizeNIT(c.NIT)
		if !client.ValidNIT(c.NIT) {
			rejected++
			continue
		}
		kept = append(kept, c)
	}
	doc.Clients = kept
	return &doc, rejected, nil
}

// decodeConsumptionsJSON accepts either a bare array of records or an
// object with a "consumptions" array.
func decodeConsumptionsJSON(r io.Reader) ([]consumption.Record, int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}

	var list []consumption.Record
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &list)
	} else {
		var wrapped jsonConsumptions
		err = json.Unmarshal(trimmed, &wrapped)
		list = wrapped.Consumptions
	}
	if err != nil {
		return nil, 0, &Error{Field: "document", Message: "malformed JSON: " + err.Error()}
	}

	recs := make([]consumption.Record, 0, len(list))
	rejected := 0
	for i, rec := range list {
		if !client.ValidNIT(client.NormalizeNIT(rec.NIT)) {
			rejected++
			continue
		}
		rec, err := NormalizeRecord(rec)
		if err != nil {
			return nil, 0, prefixed(fmt.Sprintf("consumptions[%d]", i), err)
		}
		recs = append(recs, rec)
	}
	return recs, rejected, nil
}

// Normalization shared by both encodings

func normalizeDocument(doc *Document) error {
	for i, r := range doc.Resources {
		if r == nil {
			return &Error{Field: fmt.Sprintf("resources[%d]", i), Message: "This field is required"}
		}
		if r.Type == "" {
			r.Type = catalog.ResourceHardware
		}
		if err := Validate(r); err != nil {
			return prefixed(fmt.Sprintf("resources[%d]", i), err)
		}
		if r.ValuePerHour.IsNegative() {
			return &Error{Field: fmt.Sprintf("resources[%d].value_per_hour", i), Message: "Must be greater than or equal to 0"}
		}
	}

	for i, c := range doc.Categories {
		if c == nil {
			return &Error{Field: fmt.Sprintf("categories[%d]", i), Message: "This field is required"}
		}
		if err := Validate(c); err != nil {
			return prefixed(fmt.Sprintf("categories[%d]", i), err)
		}
		for j, cfg := range c.Configurations {
			for k, cr := range cfg.Resources {
				if cr.Quantity.IsNegative() {
					return &Error{
						Field:   fmt.Sprintf("categories[%d].configurations[%d].resources[%d].quantity", i, j, k),
						Message: "Must be greater than or equal to 0",
					}
				}
			}
		}
		c.Own()
	}

	for i, c := range doc.Clients {
		for j := range c.Instances {
			inst := &c.Instances[j]
			field := fmt.Sprintf("clients[%d].instances[%d]", i, j)
			status := client.StatusActive
			if strings.TrimSpace(string(inst.Status)) != "" {
				s, ok := client.ParseStatus(string(inst.Status))
				if !ok {
					return &Error{Field: field + ".status", Message: "Must be one of: Vigente Cancelada"}
				}
				status = s
			}
			inst.Status = status
			inst.StartDate = normalizeDay(inst.StartDate)
			if status == client.StatusCancelled {
				inst.EndDate = normalizeDay(inst.EndDate)
				if inst.EndDate == "" {
					return &Error{Field: field + ".end_date", Message: "Cancelled instances need an end date"}
				}
			} else {
				inst.EndDate = ""
			}
		}
		if err := Validate(c); err != nil {
			return prefixed(fmt.Sprintf("clients[%d]", i), err)
		}
	}
	return nil
}

func prefixed(prefix string, err error) error {
	if e, ok := err.(*Error); ok {
		return &Error{Field: prefix + "." + e.Field, Message: e.Message}
	}
	return err
}

func parseID(field, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &Error{Field: field, Message: "This field is required"}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &Error{Field: field, Message: "Must be an integer"}
	}
	return v, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &Error{Field: field, Message: "Must be a decimal number"}
	}
	if d.IsNegative() {
		return decimal.Zero, &Error{Field: field, Message: "Must be greater than or equal to 0"}
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

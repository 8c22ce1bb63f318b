package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/source"
)

// rule selects one value from a decoded payload. When elem is set, the
// value under key is expected to be a list of objects and the first
// element's elem field is used.
type rule struct {
	key  string
	elem string
}

// listRule collects elem from every element of the list under key; with
// elem empty the list is taken as plain strings.
type listRule struct {
	key  string
	elem string
}

// ruleSet is the explicit, ordered field-extraction table for one source.
// Rules are applied in order and the first non-empty result wins, which
// keeps normalization deterministic across runs.
type ruleSet struct {
	product  []rule
	brand    []rule
	category []rule
	hazard   []rule
	url      []rule
	date     []rule
	upcs     []listRule
	vins     []listRule
}

var ruleSets = map[models.Source]ruleSet{
	models.SourceCPSC: {
		product:  []rule{{key: "Product"}, {key: "Products", elem: "Name"}, {key: "Title"}},
		brand:    []rule{{key: "Manufacturers", elem: "Name"}},
		category: []rule{{key: "Products", elem: "Type"}},
		hazard:   []rule{{key: "Hazards", elem: "Name"}, {key: "Hazard"}},
		url:      []rule{{key: "URL"}},
		date:     []rule{{key: "RecallDate"}},
		upcs:     []listRule{{key: "Products", elem: "UPC"}},
	},
	models.SourceFDAFood:   fdaRules,
	models.SourceFDADrug:   fdaRules,
	models.SourceFDADevice: fdaRules,
	models.SourceUSDA: {
		product:  []rule{{key: "field_title"}, {key: "field_product_items"}},
		brand:    []rule{{key: "field_establishment"}},
		category: []rule{{key: "field_processing"}},
		hazard:   []rule{{key: "field_recall_reason"}, {key: "field_summary"}},
		url:      []rule{{key: "field_press_release"}},
		date:     []rule{{key: "field_recall_date"}},
	},
	models.SourceNHTSA: {
		product: []rule{{key: "Component"}, {key: "Model"}},
		brand:   []rule{{key: "Make"}},
		hazard:  []rule{{key: "Summary"}},
		url:     []rule{{key: "NHTSAActionNumber"}},
		date:    []rule{{key: "ReportReceivedDate"}},
	},
	models.SourceNHTSAVIN: {
		product: []rule{{key: "Vehicle"}},
		brand:   []rule{{key: "Make"}},
		hazard:  []rule{{key: "Summary"}},
		date:    []rule{{key: "ReportReceivedDate"}, {key: "RecallDate"}},
		vins:    []listRule{{key: "VINs"}},
	},
}

var fdaRules = ruleSet{
	product:  []rule{{key: "product_description"}},
	brand:    []rule{{key: "recalling_firm"}},
	category: []rule{{key: "product_type"}},
	hazard:   []rule{{key: "reason_for_recall"}},
	url:      []rule{{key: "link"}, {key: "more_code_info"}},
	date:     []rule{{key: "recall_initiation_date"}, {key: "report_date"}},
}

// miscRules covers every ad-hoc scraper; scrapers emit a uniform payload.
var miscRules = ruleSet{
	product: []rule{{key: "title"}},
	brand:   []rule{{key: "brand"}},
	hazard:  []rule{{key: "hazard"}},
	url:     []rule{{key: "url"}},
	date:    []rule{{key: "date"}},
}

func rulesFor(src models.Source) ruleSet {
	if strings.HasPrefix(string(src), string(models.SourceMisc)+"/") {
		return miscRules
	}
	return ruleSets[src]
}

// Normalize converts one raw upstream fragment into the canonical recall
// record. It is a pure function: identical input always yields identical
// output (FetchedAt is stamped later by the orchestrator).
func Normalize(raw source.RawRecall) (models.Recall, error) {
	if strings.TrimSpace(raw.ExternalID) == "" {
		return models.Recall{}, fmt.Errorf("source %s: record has no external id", raw.Source)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return models.Recall{}, fmt.Errorf("source %s record %s: decode payload: %w", raw.Source, raw.ExternalID, err)
	}

	rs := rulesFor(raw.Source)

	recall := models.Recall{
		Source:     raw.Source,
		ExternalID: strings.TrimSpace(raw.ExternalID),
		Product:    extractString(payload, rs.product),
		Brand:      extractString(payload, rs.brand),
		Category:   extractString(payload, rs.category),
		Hazard:     extractString(payload, rs.hazard),
		DetailsURL: extractString(payload, rs.url),
		UPCs:       extractList(payload, rs.upcs),
		VINs:       extractList(payload, rs.vins),
		RawPayload: raw.Payload,
	}

	if date := source.ParseDate(extractString(payload, rs.date)); date != nil {
		recall.RecallDate = date
	} else if raw.RecallDate != nil {
		d := raw.RecallDate.UTC()
		recall.RecallDate = &d
	}

	return recall, nil
}

// Batch normalizes a fetched batch, skipping malformed records and
// records older than the cutoff. A single bad record never aborts the
// rest of the batch.
func Batch(raws []source.RawRecall, cutoff time.Time, logger zerolog.Logger) []models.Recall {
	recalls := make([]models.Recall, 0, len(raws))
	for _, raw := range raws {
		recall, err := Normalize(raw)
		if err != nil {
			logger.Warn().Err(err).Str("source", string(raw.Source)).Msg("skipping malformed record")
			continue
		}
		if recall.RecallDate != nil && recall.RecallDate.Before(cutoff) {
			continue
		}
		recalls = append(recalls, recall)
	}
	return recalls
}

func extractString(payload map[string]interface{}, rules []rule) string {
	for _, r := range rules {
		value, ok := payload[r.key]
		if !ok || value == nil {
			continue
		}
		if r.elem == "" {
			if s := asString(value); s != "" {
				return s
			}
			continue
		}
		list, ok := value.([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		first, ok := list[0].(map[string]interface{})
		if !ok {
			continue
		}
		if s := asString(first[r.elem]); s != "" {
			return s
		}
	}
	return ""
}

func extractList(payload map[string]interface{}, rules []listRule) []string {
	for _, r := range rules {
		list, ok := payload[r.key].([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		var out []string
		for _, item := range list {
			var s string
			if r.elem == "" {
				s = asString(item)
			} else if obj, ok := item.(map[string]interface{}); ok {
				s = asString(obj[r.elem])
			}
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func asString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

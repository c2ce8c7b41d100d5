package catalog

import (
	"bytes"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

//go:embed content/journey.yaml
var embedded embed.FS

const embeddedPath = "content/journey.yaml"

// catalogFile mirrors the YAML layout of a catalog file.
type catalogFile struct {
	Introduction string       `yaml:"introduction"`
	Modules      []moduleSpec `yaml:"modules"`
	Badges       []badgeSpec  `yaml:"badges"`
}

type moduleSpec struct {
	ID           string         `yaml:"id"`
	Trail        string         `yaml:"trail"`
	Title        string         `yaml:"title"`
	Description  string         `yaml:"description"`
	MinAgeMonths int            `yaml:"min_age_months"`
	MaxAgeMonths int            `yaml:"max_age_months"`
	WeekNumber   int            `yaml:"week_number"`
	OrderIndex   int            `yaml:"order_index"`
	Questions    []questionSpec `yaml:"questions"`
}

type questionSpec struct {
	ID            string            `yaml:"id"`
	Prompt        string            `yaml:"prompt"`
	MinAgeMonths  *int              `yaml:"min_age_months"`
	MaxAgeMonths  *int              `yaml:"max_age_months"`
	OrderIndex    int               `yaml:"order_index"`
	Options       []optionSpec      `yaml:"options"`
	Feedback      map[string]string `yaml:"feedback"`
	CorrectAnswer string            `yaml:"correct_answer"`
}

type optionSpec struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

type badgeSpec struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	Criteria    struct {
		Kind     string `yaml:"kind"`
		ModuleID string `yaml:"module_id"`
		Trail    string `yaml:"trail"`
		Count    int    `yaml:"count"`
	} `yaml:"criteria"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	raw, err := embedded.ReadFile(embeddedPath)
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog: %w", err)
	}
	return Parse(raw)
}

// Load reads and validates a catalog file. An empty path loads the default catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML content and validates it. Unknown fields are rejected.
func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog yaml: %w", err)
	}
	return New(file.definition())
}

func (s catalogFile) definition() Definition {
	def := Definition{Introduction: s.Introduction}

	for _, ms := range s.Modules {
		md := ModuleDefinition{
			ID:          ms.ID,
			Trail:       Trail(ms.Trail),
			Title:       ms.Title,
			Description: ms.Description,
			Window:      AgeWindow{Min: ms.MinAgeMonths, Max: ms.MaxAgeMonths},
			WeekNumber:  ms.WeekNumber,
			OrderIndex:  ms.OrderIndex,
		}
		for _, qs := range ms.Questions {
			qd := QuestionDefinition{
				ID:                 qs.ID,
				Prompt:             qs.Prompt,
				OrderIndex:         qs.OrderIndex,
				FeedbackByOptionID: qs.Feedback,
				CorrectAnswer:      qs.CorrectAnswer,
			}
			if qs.MinAgeMonths != nil || qs.MaxAgeMonths != nil {
				w := md.Window
				if qs.MinAgeMonths != nil {
					w.Min = *qs.MinAgeMonths
				}
				if qs.MaxAgeMonths != nil {
					w.Max = *qs.MaxAgeMonths
				}
				qd.Window = &w
			}
			for _, opt := range qs.Options {
				qd.Options = append(qd.Options, Option{ID: opt.ID, Text: opt.Text})
			}
			md.Questions = append(md.Questions, qd)
		}
		def.Modules = append(def.Modules, md)
	}

	for _, bs := range s.Badges {
		def.Badges = append(def.Badges, Badge{
			ID:          bs.ID,
			Title:       bs.Title,
			Description: bs.Description,
			Icon:        bs.Icon,
			Criteria: UnlockCriteria{
				Kind:     CriteriaKind(bs.Criteria.Kind),
				ModuleID: bs.Criteria.ModuleID,
				Trail:    Trail(bs.Criteria.Trail),
				Count:    bs.Criteria.Count,
			},
		})
	}
	return def
}

// Digest hashes a definition with BLAKE2b-256 and returns the first 16 hex chars.
func Digest(def Definition) (string, error) {
	canonical, err := json.Marshal(def)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}

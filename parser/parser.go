package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/happyhackingspace/ffml/engine"
)

// OutcomeKind discriminates ParseOutcome. Flush and HogwildLoad are control
// messages, not examples or failures, so they get their own sum-type cases
// rather than being squeezed through the error return.
type OutcomeKind int

const (
	OutcomeExample OutcomeKind = iota
	OutcomeFlush
	OutcomeHogwildLoad
	OutcomeErr
)

// ParseOutcome is the result of parsing one input line.
type ParseOutcome struct {
	Kind        OutcomeKind
	Example     *engine.Example
	HogwildPath string
	Err         error
}

func errOutcome(err error) ParseOutcome { return ParseOutcome{Kind: OutcomeErr, Err: err} }

// Parser turns text lines into ParseOutcomes. It is
// read-only after construction and safe to share across Hogwild workers;
// each worker should still keep its own Example/feature-buffer reuse,
// which is the caller's responsibility, not the Parser's.
type Parser struct {
	namespaces  map[string]Namespace
	k           int
	fieldsCount int
}

// NewParser builds a parser over a namespace declaration set. k is the FFM
// embedding width, needed to compute contra_field_index = field*k.
func NewParser(namespaces []Namespace, k int) *Parser {
	count := 0
	for _, ns := range namespaces {
		if ns.Field+1 > count {
			count = ns.Field + 1
		}
	}
	return &Parser{namespaces: ByName(namespaces), k: k, fieldsCount: count}
}

// Parse decodes one line. serial becomes the resulting Example's serial
// number (used by dropout's deterministic coin, among other things).
func (p *Parser) Parse(line string, serial uint64) ParseOutcome {
	trimmed := strings.TrimSpace(line)
	if trimmed == "flush" {
		return ParseOutcome{Kind: OutcomeFlush}
	}
	if path, ok := strings.CutPrefix(trimmed, "hogwild_load "); ok {
		return ParseOutcome{Kind: OutcomeHogwildLoad, HogwildPath: strings.TrimSpace(path)}
	}

	tokens := strings.Fields(trimmed)
	if len(tokens) == 0 {
		return errOutcome(fmt.Errorf("parser: empty line"))
	}

	idx := 0
	ex := &engine.Example{Importance: 1, Serial: serial}

	if !strings.HasPrefix(tokens[0], "|") {
		switch tokens[0] {
		case "1":
			ex.HasLabel = true
			ex.Label = 1
		case "-1":
			ex.HasLabel = true
			ex.Label = 0
		default:
			return errOutcome(fmt.Errorf("parser: malformed label %q", tokens[0]))
		}
		idx++
		if idx < len(tokens) && !strings.HasPrefix(tokens[idx], "|") {
			importance, err := strconv.ParseFloat(tokens[idx], 32)
			if err != nil {
				return errOutcome(fmt.Errorf("parser: unparsable importance %q: %w", tokens[idx], err))
			}
			if importance < 0 {
				return errOutcome(fmt.Errorf("parser: negative example importance %v", importance))
			}
			ex.Importance = float32(importance)
			idx++
		}
	}

	if idx >= len(tokens) || !strings.HasPrefix(tokens[idx], "|") {
		return errOutcome(fmt.Errorf("parser: missing namespace bar"))
	}

	var cur Namespace
	haveCur := false
	var curNSWeight float32 = 1

	for ; idx < len(tokens); idx++ {
		tok := tokens[idx]

		if strings.HasPrefix(tok, "|") {
			decl := tok[1:]
			name := decl
			nsWeight := float32(1)
			if at := strings.IndexByte(decl, ':'); at >= 0 {
				name = decl[:at]
				w, err := strconv.ParseFloat(decl[at+1:], 32)
				if err != nil {
					return errOutcome(fmt.Errorf("parser: unparsable namespace weight %q: %w", decl[at+1:], err))
				}
				nsWeight = float32(w)
			}
			ns, ok := p.namespaces[name]
			if !ok {
				return errOutcome(fmt.Errorf("parser: unknown namespace %q", name))
			}
			cur = ns
			haveCur = true
			curNSWeight = nsWeight
			continue
		}

		if !haveCur {
			return errOutcome(fmt.Errorf("parser: feature token %q before any namespace", tok))
		}

		featTok := tok
		var value float32
		if cur.Kind == F32 {
			v, err := strconv.ParseFloat(featTok, 32)
			if err != nil {
				return errOutcome(fmt.Errorf("parser: namespace %q requires f32 tokens, got %q: %w", cur.Name, featTok, err))
			}
			value = float32(v) * curNSWeight
		} else {
			fweight := float32(1)
			if at := strings.IndexByte(featTok, ':'); at >= 0 {
				w, err := strconv.ParseFloat(featTok[at+1:], 32)
				if err != nil {
					return errOutcome(fmt.Errorf("parser: unparsable feature weight %q: %w", featTok[at+1:], err))
				}
				fweight = float32(w)
				featTok = featTok[:at]
			}
			value = fweight * curNSWeight
		}

		hash := featureHash(cur.seed, featTok)
		ex.LR = append(ex.LR, engine.LRFeature{Hash: hash, Value: value})
		if cur.Field >= 0 {
			ex.FFM = append(ex.FFM, engine.FFMFeature{
				Hash:             hash,
				Value:            value,
				ContraFieldIndex: cur.Field * p.k,
			})
		}
	}

	ex.FFMFieldsCount = p.fieldsCount
	sort.SliceStable(ex.FFM, func(i, j int) bool {
		return ex.FFM[i].ContraFieldIndex < ex.FFM[j].ContraFieldIndex
	})

	return ParseOutcome{Kind: OutcomeExample, Example: ex}
}

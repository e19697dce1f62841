package model

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateType classifies how an event's date was declared.
type DateType string

const (
	DateTypeFixed    DateType = "fixed"
	DateTypeRelative DateType = "relative"
	DateTypeRange    DateType = "range"
)

// Importance grades an event for downstream views.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

// Phase is a fixed stage in the procurement lifecycle. The phase order
// is the tie-break for events sharing a calendar date, so the ordering
// below is part of the contract, not presentation.
type Phase string

const (
	PhasePublicacao       Phase = "PUBLICACAO"
	PhaseEsclarecimentos  Phase = "ESCLARECIMENTOS"
	PhaseCadastramento    Phase = "CADASTRAMENTO"
	PhaseEntregaPropostas Phase = "ENTREGA_PROPOSTAS"
	PhaseSessaoPublica    Phase = "SESSAO_PUBLICA"
	PhaseLances           Phase = "LANCES"
	PhaseJulgamento       Phase = "JULGAMENTO"
	PhaseHabilitacao      Phase = "HABILITACAO"
	PhaseRecursos         Phase = "RECURSOS"
	PhaseAdjudicacao      Phase = "ADJUDICACAO"
	PhaseHomologacao      Phase = "HOMOLOGACAO"
	PhaseAssinatura       Phase = "ASSINATURA"
	PhaseExecucao         Phase = "EXECUCAO"
	PhasePagamento        Phase = "PAGAMENTO"
	PhaseGarantia         Phase = "GARANTIA"
	PhaseOutros           Phase = "OUTROS"
)

var phaseOrders = map[Phase]int{
	PhasePublicacao:       1,
	PhaseEsclarecimentos:  2,
	PhaseCadastramento:    3,
	PhaseEntregaPropostas: 4,
	PhaseSessaoPublica:    5,
	PhaseLances:           6,
	PhaseJulgamento:       7,
	PhaseHabilitacao:      8,
	PhaseRecursos:         9,
	PhaseAdjudicacao:      10,
	PhaseHomologacao:      11,
	PhaseAssinatura:       12,
	PhaseExecucao:         13,
	PhasePagamento:        14,
	PhaseGarantia:         15,
	PhaseOutros:           16,
}

// SemanticOrder returns the fixed ordering index of the phase.
// Unknown phases sort with OUTROS.
func (p Phase) SemanticOrder() int {
	if order, ok := phaseOrders[p]; ok {
		return order
	}
	return phaseOrders[PhaseOutros]
}

// phaseKeywords maps event-type fragments to phases, checked in order
// so the more specific fragments win.
var phaseKeywords = []struct {
	fragment string
	phase    Phase
}{
	{"SESSAO", PhaseSessaoPublica},
	{"ESCLARECIMENTO", PhaseEsclarecimentos},
	{"IMPUGNACAO", PhaseEsclarecimentos},
	{"CADASTR", PhaseCadastramento},
	{"CREDENCIAMENTO", PhaseCadastramento},
	{"PROPOSTA", PhaseEntregaPropostas},
	{"LANCE", PhaseLances},
	{"JULGAMENTO", PhaseJulgamento},
	{"HABILITACAO", PhaseHabilitacao},
	{"RECURSO", PhaseRecursos},
	{"ADJUDICACAO", PhaseAdjudicacao},
	{"HOMOLOGACAO", PhaseHomologacao},
	{"ASSINATURA", PhaseAssinatura},
	{"CONTRATO", PhaseAssinatura},
	{"EXECUCAO", PhaseExecucao},
	{"ENTREGA", PhaseExecucao},
	{"PAGAMENTO", PhasePagamento},
	{"GARANTIA", PhaseGarantia},
	{"PUBLICACAO", PhasePublicacao},
	{"EDITAL", PhasePublicacao},
}

// ClassifyPhase derives the phase from a raw event type. Exact phase
// names are honored first, then keyword fragments; anything else is
// OUTROS.
func ClassifyPhase(eventType string) Phase {
	normalized := strings.ToUpper(strings.TrimSpace(eventType))
	if _, ok := phaseOrders[Phase(normalized)]; ok {
		return Phase(normalized)
	}
	for _, kw := range phaseKeywords {
		if strings.Contains(normalized, kw.fragment) {
			return kw.phase
		}
	}
	return PhaseOutros
}

// RelativeRef anchors a relative event to another entity plus an offset.
type RelativeRef struct {
	AnchorRID uuid.UUID `json:"anchor_rid"`
	AnchorKey string    `json:"anchor_key"`
	Offset    int       `json:"offset"`
	Unit      string    `json:"unit"`
	Direction string    `json:"direction"`
}

// Value implements driver.Valuer; a nil ref stores SQL NULL.
func (r *RelativeRef) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// UUIDList is the JSONB column type for linked entity RIDs.
type UUIDList []uuid.UUID

func (l UUIDList) Value() (driver.Value, error) {
	if l == nil {
		l = UUIDList{}
	}
	return json.Marshal(l)
}

func (l *UUIDList) Scan(value interface{}) error {
	return scanJSONB(l, value)
}

// StringList is the JSONB column type for tag sets.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	return scanJSONB(l, value)
}

// TimelineEvent is one resolved event on a document's timeline.
// Date is set iff the date type is fixed/range with a parseable date;
// relative events carry Date only once their anchor offset has been
// applied. An event with neither a date nor a resolved anchor is
// unresolved and excluded from date-ordered views.
type TimelineEvent struct {
	ID                 int64        `json:"id"`
	RID                uuid.UUID    `json:"rid"`
	DocumentRID        uuid.UUID    `json:"document_rid"`
	Date               *time.Time   `json:"date,omitempty"`
	DateRaw            string       `json:"date_raw"`
	DateType           DateType     `json:"date_type"`
	RelativeTo         *RelativeRef `json:"relative_to,omitempty"`
	EventType          string       `json:"event_type"`
	Phase              Phase        `json:"phase"`
	SemanticOrder      int          `json:"semantic_order"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Importance         Importance   `json:"importance"`
	ActionRequired     string       `json:"action_required,omitempty"`
	LinkedPenalties    UUIDList     `json:"linked_penalties"`
	LinkedRequirements UUIDList     `json:"linked_requirements"`
	LinkedObligations  UUIDList     `json:"linked_obligations"`
	LinkedRisks        UUIDList     `json:"linked_risks"`
	Tags               StringList   `json:"tags"`
	SourcePages        IntList      `json:"source_pages"`
	CommentsCount      int          `json:"comments_count"`
	CreatedAt          time.Time    `json:"created_at"`
}

// Urgency is derived metadata computed at read time, never stored.
type Urgency struct {
	DaysUntilDeadline *int `json:"days_until_deadline,omitempty"`
	HasPenalty        bool `json:"has_penalty"`
	BlockingForOthers bool `json:"blocking_for_others"`
}

// TimelineBuckets groups a document's events into the three ordering
// buckets of the timeline contract.
type TimelineBuckets struct {
	Dated      []*TimelineEvent `json:"dated"`
	Relative   []*TimelineEvent `json:"relative"`
	Unresolved []*TimelineEvent `json:"unresolved"`
}

// TimelineStats are the aggregate counts exposed to read views.
type TimelineStats struct {
	Total            int                `json:"total"`
	ByImportance     map[Importance]int `json:"by_importance"`
	UpcomingCritical int                `json:"upcoming_critical"`
	Tags             []string           `json:"tags"`
}

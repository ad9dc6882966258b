package rubric

import (
	"fmt"
	"sort"
)

// Operator joins the items of a rationale group.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// Competency keys for the ENEM rubric.
const (
	C1 = "C1"
	C2 = "C2"
	C3 = "C3"
	C4 = "C4"
	C5 = "C5"
)

// PointsPerLevel converts an ENEM level into its score contribution.
const PointsPerLevel = 40

// Node is either a Criterion or a Group.
type Node interface {
	leaves() []string
}

// Criterion is a selectable justification leaf.
type Criterion struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (c Criterion) leaves() []string { return []string{c.ID} }

// Group combines nodes with AND / OR semantics. Multiple marks the "E/OU" case.
type Group struct {
	Operator Operator `json:"op"`
	Multiple bool     `json:"multiple,omitempty"`
	Items    []Node   `json:"items"`
}

func (g Group) leaves() []string {
	ids := make([]string, 0, len(g.Items))
	for _, item := range g.Items {
		ids = append(ids, item.leaves()...)
	}
	return ids
}

// Level is a scoring band of a competency.
type Level struct {
	Level     int         `json:"level"`
	Points    int         `json:"points"`
	Summary   string      `json:"summary"`
	Mandatory []Criterion `json:"mandatory,omitempty"`
	Rationale *Group      `json:"rationale,omitempty"`
}

// RequiresJustification reports whether any reason id must be picked for the level.
func (l Level) RequiresJustification() bool {
	return l.Rationale != nil || len(l.Mandatory) > 0
}

// LeafIDs lists every reason id that belongs to the level.
func (l Level) LeafIDs() []string {
	ids := make([]string, 0, len(l.Mandatory))
	for _, m := range l.Mandatory {
		ids = append(ids, m.ID)
	}
	if l.Rationale != nil {
		ids = append(ids, l.Rationale.leaves()...)
	}
	return ids
}

// Competency groups the levels of one rubric axis.
type Competency struct {
	Key         string  `json:"key"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Levels      []Level `json:"levels"`
}

// Catalog is the immutable rubric table.
type Catalog struct {
	Name         string       `json:"name"`
	Competencies []Competency `json:"competencies"`

	index map[string]map[int]Level
}

// NewCatalog indexes the competencies and rejects duplicated leaf ids within a level.
func NewCatalog(name string, competencies []Competency) (*Catalog, error) {
	index := make(map[string]map[int]Level, len(competencies))
	for _, comp := range competencies {
		if _, exists := index[comp.Key]; exists {
			return nil, fmt.Errorf("duplicate competency %s", comp.Key)
		}
		levels := make(map[int]Level, len(comp.Levels))
		for _, lvl := range comp.Levels {
			seen := make(map[string]struct{})
			for _, id := range lvl.LeafIDs() {
				if _, dup := seen[id]; dup {
					return nil, fmt.Errorf("competency %s level %d: duplicate criterion %s", comp.Key, lvl.Level, id)
				}
				seen[id] = struct{}{}
			}
			levels[lvl.Level] = lvl
		}
		index[comp.Key] = levels
	}
	return &Catalog{Name: name, Competencies: competencies, index: index}, nil
}

// Level returns the level definition for a competency.
func (c *Catalog) Level(key string, level int) (Level, error) {
	levels, ok := c.index[key]
	if !ok {
		return Level{}, fmt.Errorf("%w: %s", ErrUnknownCompetency, key)
	}
	lvl, ok := levels[level]
	if !ok {
		return Level{}, fmt.Errorf("%w: %s level %d", ErrUnknownLevel, key, level)
	}
	return lvl, nil
}

// Keys returns the competency keys in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.Competencies))
	for _, comp := range c.Competencies {
		keys = append(keys, comp.Key)
	}
	return keys
}

// LevelNumbers returns the sorted level numbers available for a competency.
func (c *Catalog) LevelNumbers(key string) []int {
	levels := c.index[key]
	out := make([]int, 0, len(levels))
	for n := range levels {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func points(level int) int { return level * PointsPerLevel }

func leaf(id, label string) Criterion { return Criterion{ID: id, Label: label} }

func and(items ...Node) *Group { return &Group{Operator: OperatorAnd, Items: items} }

func or(items ...Node) *Group { return &Group{Operator: OperatorOr, Items: items} }

func orMulti(items ...Node) *Group { return &Group{Operator: OperatorOr, Multiple: true, Items: items} }

func abordagemCompleta(level int) []Criterion {
	return []Criterion{leaf(fmt.Sprintf("c2_l%d_abordagem_completa", level), "Abordagem completa do tema")}
}

// ENEM2024 returns the ENEM 2024 correction rubric.
func ENEM2024() *Catalog {
	catalog, err := NewCatalog("ENEM 2024", enem2024Competencies())
	if err != nil {
		panic(err)
	}
	return catalog
}

func enem2024Competencies() []Competency {
	return []Competency{
		{
			Key:         C1,
			Title:       "Competência 1",
			Description: "Domínio da norma padrão da língua portuguesa.",
			Levels: []Level{
				{Level: 0, Points: points(0), Summary: "Estrutura sintática inexistente (independentemente da quantidade de desvios)"},
				{Level: 1, Points: points(1), Summary: "Estrutura sintática deficitária COM muitos desvios"},
				{Level: 2, Points: points(2), Summary: "Estrutura sintática deficitária OU muitos desvios"},
				{Level: 3, Points: points(3), Summary: "Estrutura sintática regular E alguns desvios"},
				{Level: 4, Points: points(4), Summary: "Estrutura sintática boa E poucos desvios"},
				{Level: 5, Points: points(5), Summary: "Estrutura sintática excelente (no máximo, uma falha) E, no máximo, dois desvios"},
			},
		},
		{
			Key:         C2,
			Title:       "Competência 2",
			Description: "Compreensão da proposta de redação e aplicação de conceitos de outras áreas.",
			Levels: []Level{
				{
					Level:   1,
					Points:  points(1),
					Summary: "Tangência ao tema OU Texto composto por aglomerado caótico de palavras OU Traços constantes de outros tipos textuais",
					Rationale: orMulti(
						leaf("c2_l1_tangencia", "Tangência ao tema"),
						leaf("c2_l1_aglomerado", "Texto composto por aglomerado caótico de palavras"),
						leaf("c2_l1_outros_tipos", "Traços constantes de outros tipos textuais"),
					),
				},
				{
					Level:     2,
					Points:    points(2),
					Summary:   "Abordagem completa do tema E 3 partes do texto (2 delas embrionárias) OU conclusão finalizada por frase incompleta // Redação com muitas cópias",
					Mandatory: abordagemCompleta(2),
					Rationale: or(
						and(leaf("c2_l2_3partes_2_embrionarias", "3 partes do texto (2 delas embrionárias)")),
						leaf("c2_l2_conclusao_incompleta", "Conclusão finalizada por frase incompleta"),
						leaf("c2_l2_muitas_copias", "Redação com muitas cópias (não deve ultrapassar este nível)"),
					),
				},
				{
					Level:     3,
					Points:    points(3),
					Summary:   "Abordagem completa do tema E 3 partes do texto (1 delas embrionária) E repertório baseado nos textos motivadores E/OU repertório não legitimado E/OU repertório legitimado MAS não pertencente ao tema",
					Mandatory: abordagemCompleta(3),
					Rationale: and(
						leaf("c2_l3_3partes_1_embrionaria", "3 partes do texto (1 delas embrionária)"),
						orMulti(
							leaf("c2_l3_repertorio_baseado_motivadores", "Repertório baseado nos textos motivadores"),
							leaf("c2_l3_repertorio_nao_legitimado", "Repertório não legitimado"),
							leaf("c2_l3_repertorio_legitimado_nao_pertinente", "Repertório legitimado MAS não pertencente ao tema"),
						),
					),
				},
				{
					Level:     4,
					Points:    points(4),
					Summary:   "Abordagem completa do tema E 3 partes do texto (nenhuma embrionária) E repertório legitimado E pertinente ao tema, SEM uso produtivo.",
					Mandatory: abordagemCompleta(4),
					Rationale: and(
						leaf("c2_l4_3partes_nenhuma_embrionaria", "3 partes do texto (nenhuma embrionária)"),
						leaf("c2_l4_repertorio_legitimado", "Repertório legitimado"),
						leaf("c2_l4_pertinente_sem_produtivo", "Pertinente ao tema, SEM uso produtivo"),
					),
				},
				{
					Level:     5,
					Points:    points(5),
					Summary:   "Abordagem completa do tema E 3 partes do texto (nenhuma embrionária) E repertório legitimado E pertinente ao tema, COM uso produtivo.",
					Mandatory: abordagemCompleta(5),
					Rationale: and(
						leaf("c2_l5_3partes_nenhuma_embrionaria", "3 partes do texto (nenhuma embrionária)"),
						leaf("c2_l5_repertorio_legitimado", "Repertório legitimado"),
						leaf("c2_l5_pertinente_com_produtivo", "Pertinente ao tema, COM uso produtivo"),
					),
				},
			},
		},
		{
			Key:         C3,
			Title:       "Competência 3",
			Description: "Organização e defesa de argumentos.",
			Levels: []Level{
				{Level: 0, Points: points(0), Summary: "Aglomerado caótico de palavras"},
				{Level: 1, Points: points(1), Summary: "Projeto de texto sem foco temático ou distorcido"},
				{
					Level:   2,
					Points:  points(2),
					Summary: "Projeto de texto com MUITAS falhas E sem desenvolvimento ou desenvolvimento de apenas uma informação // Contradição grave",
					Rationale: or(
						and(
							leaf("c3_l2_muitas_falhas", "MUITAS falhas"),
							or(
								leaf("c3_l2_sem_desenvolvimento", "Sem desenvolvimento"),
								leaf("c3_l2_desenvolvimento_um", "Desenvolvimento de apenas uma informação"),
							),
						),
						leaf("c3_l2_contradicao_grave", "Contradição grave (não deve ultrapassar este nível)"),
					),
				},
				{Level: 3, Points: points(3), Summary: "Projeto de texto com ALGUMAS falhas E desenvolvimento de informações, fatos e opiniões com ALGUMAS lacunas"},
				{Level: 4, Points: points(4), Summary: "Projeto de texto com POUCAS falhas E desenvolvimento de informações, fatos e opiniões com POUCAS lacunas"},
				{Level: 5, Points: points(5), Summary: "Projeto de texto estratégico E desenvolvimento de informações, fatos e opiniões em TODO o texto."},
			},
		},
		{
			Key:         C4,
			Title:       "Competência 4",
			Description: "Conhecimento dos mecanismos linguísticos para a argumentação (coesão).",
			Levels: []Level{
				{Level: 0, Points: points(0), Summary: "Ausência de articulação: palavras E/OU períodos desconexos"},
				{
					Level:   1,
					Points:  points(1),
					Summary: "Presença RARA de elementos coesivos intra E/OU interparágrafos E/OU EXCESSIVAS repetições E/OU EXCESSIVAS inadequações",
					Rationale: orMulti(
						leaf("c4_l1_intra_inter", "Elementos coesivos intra E/OU interparágrafos"),
						leaf("c4_l1_excessivas_repeticoes", "EXCESSIVAS repetições"),
						leaf("c4_l1_excessivas_inadequacoes", "EXCESSIVAS inadequações"),
					),
				},
				{
					Level:   2,
					Points:  points(2),
					Summary: "Presença PONTUAL de elementos coesivos intra E/OU interparágrafos E/OU MUITAS repetições E/OU MUITAS inadequações // Texto monobloco",
					Rationale: orMulti(
						leaf("c4_l2_intra_inter", "Elementos coesivos intra E/OU interparágrafos (PONTUAL)"),
						leaf("c4_l2_muitas_repeticoes", "MUITAS repetições"),
						leaf("c4_l2_muitas_inadequacoes", "MUITAS inadequações"),
						leaf("c4_l2_texto_monobloco", "Texto monobloco (não deve ultrapassar este nível)"),
					),
				},
				{
					Level:   3,
					Points:  points(3),
					Summary: "Presença REGULAR de elementos coesivos intra E/OU interparágrafos E/OU ALGUMAS repetições E/OU ALGUMAS inadequações",
					Rationale: orMulti(
						leaf("c4_l3_intra_inter", "Elementos coesivos intra E/OU interparágrafos (REGULAR)"),
						leaf("c4_l3_algumas_repeticoes", "ALGUMAS repetições"),
						leaf("c4_l3_algumas_inadequacoes", "ALGUMAS inadequações"),
					),
				},
				{
					Level:   4,
					Points:  points(4),
					Summary: "Presença CONSTANTE de elementos coesivos intra E/OU interparágrafos E/OU POUCAS repetições E/OU POUCAS inadequações",
					Rationale: orMulti(
						leaf("c4_l4_intra_inter", "Elementos coesivos intra E/OU interparágrafos (CONSTANTE)"),
						leaf("c4_l4_poucas_repeticoes", "POUCAS repetições"),
						leaf("c4_l4_poucas_inadequacoes", "POUCAS inadequações"),
					),
				},
				{
					Level:   5,
					Points:  points(5),
					Summary: "Presença EXPRESSIVA de elementos coesivos intra E/OU interparágrafos E/OU RARAS ou AUSENTES repetições E/OU SEM inadequações",
					Rationale: orMulti(
						leaf("c4_l5_intra_inter", "Elementos coesivos intra E/OU interparágrafos (EXPRESSIVA)"),
						leaf("c4_l5_raras_ausentes_repeticoes", "RARAS ou AUSENTES repetições"),
						leaf("c4_l5_sem_inadequacoes", "SEM inadequações"),
					),
				},
			},
		},
		{
			Key:         C5,
			Title:       "Competência 5",
			Description: "Elaboração de proposta de intervenção social para o problema abordado, respeitando os direitos humanos.",
			Levels: []Level{
				{
					Level:   0,
					Points:  points(0),
					Summary: "Ausência de proposta OU proposta de intervenção que desrespeita os direitos humanos OU proposta de intervenção não relacionada ao assunto",
					Rationale: orMulti(
						leaf("c5_l0_ausencia", "Ausência de proposta"),
						leaf("c5_l0_desrespeita_dh", "Proposta de intervenção que desrespeita os direitos humanos"),
						leaf("c5_l0_nao_relacionada", "Proposta de intervenção não relacionada ao assunto"),
					),
				},
				{
					Level:   1,
					Points:  points(1),
					Summary: "Tangenciamento ao tema OU apenas elementos nulos OU 1 elemento válido",
					Rationale: orMulti(
						leaf("c5_l1_tangenciamento", "Tangenciamento ao tema"),
						leaf("c5_l1_elementos_nulos", "Apenas elementos nulos"),
						leaf("c5_l1_um_elemento_valido", "1 elemento válido"),
					),
				},
				{
					Level:   2,
					Points:  points(2),
					Summary: "2 elementos válidos // Estrutura CONDICIONAL com dois ou mais elementos válidos",
					Rationale: or(
						leaf("c5_l2_dois_elementos", "2 elementos válidos"),
						leaf("c5_l2_condicional", "Estrutura CONDICIONAL com dois ou mais elementos válidos"),
					),
				},
				{Level: 3, Points: points(3), Summary: "3 elementos válidos"},
				{Level: 4, Points: points(4), Summary: "4 elementos válidos"},
				{Level: 5, Points: points(5), Summary: "5 elementos válidos"},
			},
		},
	}
}

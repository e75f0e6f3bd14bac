package survey

import (
	"errors"
	"time"
)

// Kind separa a pesquisa de clientes da pesquisa de franqueados.
type Kind string

const (
	KindCustomer   Kind = "cliente"
	KindFranchisee Kind = "franqueado"
)

const (
	StatusSent     = "enviado"
	StatusAnswered = "respondido"
)

const (
	ClassGreen  = "sala_verde"
	ClassYellow = "sala_amarela"
	ClassRed    = "sala_vermelha"
	ClassNone   = "sem_resposta"
)

// dedupWindow impede duas pesquisas para o mesmo destinatário em 90 dias.
const dedupWindow = 90 * 24 * time.Hour

const tokenBytes = 48

var (
	ErrNotFound        = errors.New("pesquisa não encontrada")
	ErrAlreadyAnswered = errors.New("pesquisa já respondida")
	ErrInvalidScore    = errors.New("nota deve ser um inteiro entre 0 e 10")
	ErrJobNotFound     = errors.New("disparo não encontrado")
)

// Classify converte a nota em sala NPS.
func Classify(score int) (string, error) {
	switch {
	case score < 0 || score > 10:
		return "", ErrInvalidScore
	case score >= 7:
		return ClassGreen, nil
	case score >= 5:
		return ClassYellow, nil
	default:
		return ClassRed, nil
	}
}

// Subject é o destinatário de uma pesquisa (cliente ou franqueado).
type Subject struct {
	ID          int64
	CompanyID   int64
	CompanyName string
	Name        string
	Email       string
	Phone       string
}

// Survey é uma pesquisa enviada.
type Survey struct {
	ID             int64      `json:"id"`
	Kind           Kind       `json:"tipo"`
	CompanyID      int64      `json:"empresa_id"`
	CompanyName    string     `json:"empresa_nome,omitempty"`
	SubjectID      int64      `json:"destinatario_id"`
	SubjectName    string     `json:"destinatario_nome,omitempty"`
	Token          string     `json:"-"`
	SentAt         time.Time  `json:"enviado_em"`
	RespondedAt    *time.Time `json:"respondido_em"`
	Score          *int       `json:"nota"`
	FiscalScore    *int       `json:"nota_fiscal,omitempty"`
	PersonalScore  *int       `json:"nota_pessoal,omitempty"`
	AccountScore   *int       `json:"nota_contabil,omitempty"`
	Comment        *string    `json:"comentario"`
	Status         string     `json:"status"`
	Classification string     `json:"classificacao_nps"`
}

// Answered indica se a pesquisa atingiu o estado terminal.
func (s Survey) Answered() bool {
	return s.Status == StatusAnswered
}

// Answer é a resposta pública enviada pelo portador do token.
type Answer struct {
	Token         string
	Score         int
	Comment       string
	FiscalScore   *int
	PersonalScore *int
	AccountScore  *int
}

// GenerateResult resume uma rodada de geração.
type GenerateResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Counts são os agregados brutos de uma empresa.
type Counts struct {
	Total       int
	Answered    int
	Green       int
	Yellow      int
	Red         int
	ScoreSum    int
	FiscalAvg   *float64
	PersonalAvg *float64
	AccountAvg  *float64
}

// Stats é a visão de satisfação por empresa.
type Stats struct {
	Total            int                 `json:"total_enviadas"`
	Answered         int                 `json:"total_respondidas"`
	Green            int                 `json:"sala_verde"`
	Yellow           int                 `json:"sala_amarela"`
	Red              int                 `json:"sala_vermelha"`
	SatisfactionRate float64             `json:"taxa_satisfacao"`
	AverageScore     float64             `json:"nota_media"`
	ResponseRate     float64             `json:"taxa_resposta"`
	Departments      *DepartmentAverages `json:"medias_departamentos,omitempty"`
}

// DepartmentAverages são as notas médias por área na pesquisa de franqueados.
type DepartmentAverages struct {
	Fiscal   *float64 `json:"fiscal"`
	Personal *float64 `json:"pessoal"`
	Account  *float64 `json:"contabil"`
}

// ListFilter pagina pesquisas de uma empresa.
type ListFilter struct {
	CompanyID int64
	Status    string
	Page      int
	Limit     int
}

// Page é a resposta paginada da listagem.
type Page struct {
	Data  []Survey `json:"data"`
	Total int64    `json:"total"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
}

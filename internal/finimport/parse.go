package finimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/contabhub/onety/internal/util"
)

var (
	ErrUnsupportedFile = errors.New("formato não suportado, envie .xlsx ou .csv")
	ErrEmptySheet      = errors.New("planilha vazia")
)

// Row é uma conta a pagar válida extraída da planilha.
type Row struct {
	Line        int       `json:"linha"`
	Description string    `json:"descricao"`
	Amount      float64   `json:"valor"`
	DueDate     time.Time `json:"-"`
	DueDateText string    `json:"vencimento"`
	Supplier    string    `json:"fornecedor"`
	Category    string    `json:"categoria"`
}

// RowError aponta uma linha ignorada e o motivo.
type RowError struct {
	Line    int    `json:"linha"`
	Message string `json:"erro"`
}

const (
	colDescription = "descricao"
	colAmount      = "valor"
	colDueDate     = "vencimento"
	colSupplier    = "fornecedor"
	colCategory    = "categoria"
)

var headerAliases = map[string]string{
	"descricao":          colDescription,
	"historico":          colDescription,
	"valor":              colAmount,
	"valor total":        colAmount,
	"vencimento":         colDueDate,
	"data vencimento":    colDueDate,
	"data de vencimento": colDueDate,
	"fornecedor":         colSupplier,
	"favorecido":         colSupplier,
	"categoria":          colCategory,
}

var requiredColumns = []string{colDescription, colAmount, colDueDate}

// ReadRecords lê a primeira aba de um .xlsx ou um .csv (separador ; ou ,).
func ReadRecords(filename string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return readXLSX(r)
	case ".csv":
		return readCSV(r)
	default:
		return nil, ErrUnsupportedFile
	}
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, util.Invalid("planilha inválida: " + err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	return f.GetRows(sheets[0])
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		reader.Comma = ';'
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, util.Invalid("csv inválido: " + err.Error())
	}
	return records, nil
}

// Parse mapeia o cabeçalho e valida cada linha; linhas inválidas viram RowError.
func Parse(records [][]string) ([]Row, []RowError, error) {
	headerIdx := -1
	for i, rec := range records {
		if !blank(rec) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, nil, ErrEmptySheet
	}

	columns := map[string]int{}
	for i, name := range records[headerIdx] {
		if col, ok := headerAliases[NormalizeHeader(name)]; ok {
			if _, seen := columns[col]; !seen {
				columns[col] = i
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, util.Invalid("colunas obrigatórias ausentes: " + strings.Join(missing, ", "))
	}

	rows := []Row{}
	rowErrs := []RowError{}
	for i := headerIdx + 1; i < len(records); i++ {
		rec := records[i]
		if blank(rec) {
			continue
		}
		line := i + 1
		cell := func(col string) string {
			idx, ok := columns[col]
			if !ok || idx >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[idx])
		}

		row := Row{
			Line:        line,
			Description: cell(colDescription),
			Supplier:    cell(colSupplier),
			Category:    cell(colCategory),
		}
		if row.Description == "" {
			rowErrs = append(rowErrs, RowError{Line: line, Message: "descrição vazia"})
			continue
		}
		amount, err := ParseAmount(cell(colAmount))
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Message: err.Error()})
			continue
		}
		due, err := ParseDueDate(cell(colDueDate))
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Message: err.Error()})
			continue
		}
		row.Amount = amount
		row.DueDate = due
		row.DueDateText = due.Format("2006-01-02")
		rows = append(rows, row)
	}

	if len(rows) == 0 && len(rowErrs) == 0 {
		return nil, nil, ErrEmptySheet
	}
	return rows, rowErrs, nil
}

// NormalizeHeader remove acentos, caixa e separadores do nome da coluna.
func NormalizeHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(strings.TrimSpace(out))
	out = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(out)
	return strings.Join(strings.Fields(out), " ")
}

// ParseAmount aceita 1.234,56 / 1234,56 / 1234.56, com ou sem R$.
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, errors.New("valor vazio")
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("valor inválido: %q", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("valor deve ser positivo: %q", raw)
	}
	return v, nil
}

var dueDateLayouts = []string{"02/01/2006", "2006-01-02", "02-01-2006", "2/1/2006", "01-02-06"}

// ParseDueDate aceita DD/MM/AAAA e AAAA-MM-DD.
func ParseDueDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("vencimento vazio")
	}
	if len(s) > 10 && strings.Contains(s, " ") {
		s = strings.SplitN(s, " ", 2)[0]
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("vencimento inválido: %q", raw)
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Package ofx turns OFX/QFX bank and card statements into classification
// subjects.
package ofx

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// Source is recorded on every imported subject.
const Source = "ofx"

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Parser reads OFX/QFX statements.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser. A nil logger uses the default one.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: common.LoggerOrDefault(logger)}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be INFO, WARN or ERROR
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML files sometimes drop the closing bracket of a bare opening tag
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses a statement file and returns one subject per
// transaction for the organization. Amounts keep their sign, so card
// purchases and debits are negative. Transactions repeated within the file
// are returned once.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader, org string) ([]model.Subject, error) {
	if strings.TrimSpace(org) == "" {
		return nil, fmt.Errorf("organization is required")
	}
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var subjects []model.Subject
	seen := make(map[string]struct{})
	add := func(list []ofxgo.Transaction, account, currency string) {
		for _, tx := range list {
			s := p.convertTransaction(tx, org, account, currency)
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			subjects = append(subjects, s)
		}
	}

	var bankStmts, ccStmts int
	for _, msg := range resp.Bank {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		bankStmts++
		add(stmt.BankTranList.Transactions, string(stmt.BankAcctFrom.AcctID), stmt.CurDef.String())
	}
	for _, msg := range resp.CreditCard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		ccStmts++
		add(stmt.BankTranList.Transactions, string(stmt.CCAcctFrom.AcctID), stmt.CurDef.String())
	}

	p.logger.Info("Parsed OFX file",
		"subjects", len(subjects),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return subjects, nil
}

// convertTransaction maps one OFX transaction to a subject.
func (p *Parser) convertTransaction(tx ofxgo.Transaction, org, account, currency string) model.Subject {
	amount, _ := tx.TrnAmt.Float64()

	description := strings.TrimSpace(string(tx.Name))
	if memo := strings.TrimSpace(string(tx.Memo)); memo != "" && (description == "" || isGenericDescription(description)) {
		description = memo
	}

	s := model.Subject{
		OrganizationID: org,
		Date:           tx.DtPosted.Time,
		Description:    description,
		MerchantName:   p.extractMerchantName(tx),
		Amount:         model.Float(amount),
		Currency:       currency,
		Source:         Source,
	}
	if tx.SIC != 0 {
		s.MerchantCode = strconv.Itoa(int(tx.SIC))
	}

	if fitID := strings.TrimSpace(string(tx.FiTID)); fitID != "" {
		sum := sha256.Sum256([]byte(org + ":" + account + ":" + fitID))
		s.ID = fmt.Sprintf("%x", sum[:16])
	} else {
		s.ID = s.GenerateID()
	}
	return s
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
		"PAIEMENT PAR CARTE ",
		"PAIEMENT CB ",
		"CB ",
		"PRLV SEPA ",
		"KARTENZAHLUNG ",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// leading "MM/DD " or "DD/MM " card dates
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	generic := []string{
		"DEBIT",
		"CREDIT",
		"PURCHASE",
		"PAYMENT",
		"POS TRANSACTION",
		"CARD PURCHASE",
		"PAIEMENT",
		"PRELEVEMENT",
	}

	upperName := strings.ToUpper(strings.TrimSpace(name))
	for _, g := range generic {
		if upperName == g {
			return true
		}
	}
	return false
}

// Accounts returns the account ids found in a statement file, sorted.
func (p *Parser) Accounts(reader io.Reader) ([]string, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	accountMap := make(map[string]bool)
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankAcctFrom.AcctID != "" {
			accountMap[string(stmt.BankAcctFrom.AcctID)] = true
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.CCAcctFrom.AcctID != "" {
			accountMap[string(stmt.CCAcctFrom.AcctID)] = true
		}
	}

	accounts := make([]string, 0, len(accountMap))
	for acct := range accountMap {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)
	return accounts, nil
}

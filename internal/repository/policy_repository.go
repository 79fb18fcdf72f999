package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/insuratrack/insuratrack/internal/model"
)

// ErrNoDocument is returned when a policy has no attached document.
var ErrNoDocument = errors.New("policy has no document")

// PolicyRepo provides data access to the policies table, including the
// compound create-with-link and renew operations. Compound operations run
// inside transactions so the partial-failure windows of the old
// implementation cannot occur.
type PolicyRepo struct{ DB *sql.DB }

func NewPolicyRepo(db *sql.DB) *PolicyRepo { return &PolicyRepo{DB: db} }

const policyCols = `id,title,description,policy_number,mobile_no,sum_assured,company_name,premium,
	start_date,renewal_date,customer_id,agent_id,is_active,last_renewal_date,
	document_name,document_type,document_uploaded_at,created_at,updated_at`

type policyScanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row policyScanner) (model.Policy, error) {
	var p model.Policy
	var lastRenewal, docUploaded sql.NullTime
	var docName, docType sql.NullString
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.PolicyNumber, &p.MobileNo,
		&p.SumAssured, &p.CompanyName, &p.Premium, &p.StartDate, &p.RenewalDate,
		&p.CustomerID, &p.AgentID, &p.IsActive, &lastRenewal,
		&docName, &docType, &docUploaded, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Policy{}, err
	}
	if lastRenewal.Valid {
		t := lastRenewal.Time
		p.LastRenewalDate = &t
	}
	if docName.Valid {
		s := docName.String
		p.DocumentName = &s
	}
	if docType.Valid {
		s := docType.String
		p.DocumentType = &s
	}
	if docUploaded.Valid {
		t := docUploaded.Time
		p.DocumentUploaded = &t
	}
	return p, nil
}

// PolicyWithCustomer augments a policy with its customer's user fields for
// agent-side tables.
type PolicyWithCustomer struct {
	model.Policy
	CustomerName     string
	CustomerEmail    string
	CustomerUsername string
}

// PolicyWithAgent augments a policy with its agent's display name for
// customer-side views.
type PolicyWithAgent struct {
	model.Policy
	AgentName string
}

// CreateWithLink inserts a new policy inside one transaction. The policy
// number must be globally unique. When the acting agent is not yet linked
// to the owning customer, the link is created as part of the same
// transaction rather than rejecting the request.
func (r *PolicyRepo) CreateWithLink(ctx context.Context, p *model.Policy) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM policies WHERE policy_number=?)", p.PolicyNumber).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrPolicyNumberExists
	}

	// The customer must exist; sql.ErrNoRows propagates as not-found.
	var customerExists uint64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM customers WHERE id=? LIMIT 1", p.CustomerID).Scan(&customerExists)
	if err != nil {
		return err
	}

	// Self-healing link: policy creation implies the relation.
	if _, err = tx.ExecContext(ctx,
		"INSERT IGNORE INTO agent_customers (agent_id, customer_id) VALUES (?,?)",
		p.AgentID, p.CustomerID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO policies (title, description, policy_number, mobile_no, sum_assured,
		 company_name, premium, start_date, renewal_date, customer_id, agent_id, is_active)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,1)`,
		p.Title, p.Description, p.PolicyNumber, p.MobileNo, p.SumAssured,
		p.CompanyName, p.Premium, p.StartDate.UTC(), p.RenewalDate.UTC(), p.CustomerID, p.AgentID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.IsActive = true
	return tx.Commit()
}

// GetByID fetches a policy by id without its document blob.
func (r *PolicyRepo) GetByID(ctx context.Context, id uint64) (model.Policy, error) {
	return scanPolicy(r.DB.QueryRowContext(ctx,
		"SELECT "+policyCols+" FROM policies WHERE id=? LIMIT 1", id))
}

// NumberExists reports whether a policy number is taken by any policy
// other than excludeID (pass 0 to check all).
func (r *PolicyRepo) NumberExists(ctx context.Context, number string, excludeID uint64) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM policies WHERE policy_number=? AND id<>?)",
		number, excludeID).Scan(&exists)
	return exists, err
}

// PolicyUpdate carries the optional fields of a plain policy update. Nil
// means "leave unchanged".
type PolicyUpdate struct {
	Title        *string
	Description  *string
	PolicyNumber *string
	MobileNo     *string
	SumAssured   *float64
	CompanyName  *string
	Premium      *float64
	StartDate    *time.Time
	RenewalDate  *time.Time
	IsActive     *bool
}

// Update merges the supplied fields into the policy row. A changed policy
// number is re-validated for uniqueness against all other policies before
// the write.
func (r *PolicyRepo) Update(ctx context.Context, id uint64, u PolicyUpdate) (model.Policy, error) {
	if u.PolicyNumber != nil {
		taken, err := r.NumberExists(ctx, *u.PolicyNumber, id)
		if err != nil {
			return model.Policy{}, err
		}
		if taken {
			return model.Policy{}, ErrPolicyNumberExists
		}
	}

	sets := []string{}
	args := []interface{}{}
	add := func(col string, v interface{}) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.PolicyNumber != nil {
		add("policy_number", *u.PolicyNumber)
	}
	if u.MobileNo != nil {
		add("mobile_no", *u.MobileNo)
	}
	if u.SumAssured != nil {
		add("sum_assured", *u.SumAssured)
	}
	if u.CompanyName != nil {
		add("company_name", *u.CompanyName)
	}
	if u.Premium != nil {
		add("premium", *u.Premium)
	}
	if u.StartDate != nil {
		add("start_date", u.StartDate.UTC())
	}
	if u.RenewalDate != nil {
		add("renewal_date", u.RenewalDate.UTC())
	}
	if u.IsActive != nil {
		add("is_active", *u.IsActive)
	}
	if len(sets) > 0 {
		args = append(args, id)
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE policies SET "+strings.Join(sets, ",")+" WHERE id=?", args...); err != nil {
			return model.Policy{}, err
		}
	}
	return r.GetByID(ctx, id)
}

// ToggleStatus flips is_active and returns the updated policy.
func (r *PolicyRepo) ToggleStatus(ctx context.Context, id uint64) (model.Policy, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE policies SET is_active = NOT is_active WHERE id=?", id)
	if err != nil {
		return model.Policy{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Policy{}, sql.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

// Delete removes a policy permanently. Ownership has already been checked
// by the handler; the customer's policy set is derived by query, so no
// back-reference maintenance is needed.
func (r *PolicyRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM policies WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Renew performs the renewal transition in one transaction: snapshot the
// current scalar fields into policy_history with change type "renewal",
// then roll the coverage window forward. The old renewal date becomes the
// new start date, the policy reactivates, and the premium changes only
// when a new one is supplied.
func (r *PolicyRepo) Renew(ctx context.Context, id, changedBy uint64, newRenewalDate time.Time, newPremium *float64, notes string) (model.Policy, model.PolicyHistory, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Policy{}, model.PolicyHistory{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanPolicy(tx.QueryRowContext(ctx,
		"SELECT "+policyCols+" FROM policies WHERE id=? LIMIT 1 FOR UPDATE", id))
	if err != nil {
		return model.Policy{}, model.PolicyHistory{}, err
	}

	now := time.Now().UTC()
	if notes == "" {
		notes = "Policy renewed on " + now.Format("2006-01-02")
	}
	hist := model.PolicyHistory{
		PolicyID:     cur.ID,
		Title:        cur.Title,
		Description:  cur.Description,
		Premium:      cur.Premium,
		StartDate:    cur.StartDate,
		RenewalDate:  cur.RenewalDate,
		CustomerID:   cur.CustomerID,
		AgentID:      cur.AgentID,
		PolicyNumber: cur.PolicyNumber,
		MobileNo:     cur.MobileNo,
		SumAssured:   cur.SumAssured,
		CompanyName:  cur.CompanyName,
		ChangeType:   model.ChangeRenewal,
		ChangedBy:    changedBy,
		Notes:        notes,
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO policy_history (policy_id, title, description, premium, start_date, renewal_date,
		 customer_id, agent_id, policy_number, mobile_no, sum_assured, company_name,
		 change_type, changed_by, notes)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		hist.PolicyID, hist.Title, hist.Description, hist.Premium,
		hist.StartDate.UTC(), hist.RenewalDate.UTC(),
		hist.CustomerID, hist.AgentID, hist.PolicyNumber, hist.MobileNo,
		hist.SumAssured, hist.CompanyName, hist.ChangeType, hist.ChangedBy, hist.Notes)
	if err != nil {
		return model.Policy{}, model.PolicyHistory{}, err
	}
	if hid, err := res.LastInsertId(); err == nil {
		hist.ID = uint64(hid)
	}

	premium := cur.Premium
	if newPremium != nil {
		premium = *newPremium
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE policies SET start_date=?, renewal_date=?, last_renewal_date=?, is_active=1, premium=?
		 WHERE id=?`,
		cur.RenewalDate.UTC(), newRenewalDate.UTC(), now, premium, id)
	if err != nil {
		return model.Policy{}, model.PolicyHistory{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Policy{}, model.PolicyHistory{}, err
	}

	updated := cur
	updated.StartDate = cur.RenewalDate
	updated.RenewalDate = newRenewalDate
	updated.LastRenewalDate = &now
	updated.IsActive = true
	updated.Premium = premium
	return updated, hist, nil
}

// ListByAgent returns all policies managed by an agent together with
// customer contact fields.
func (r *PolicyRepo) ListByAgent(ctx context.Context, agentID uint64) ([]PolicyWithCustomer, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+prefixCols("p", policyCols)+`, u.name, u.email, u.username
		 FROM policies p
		 JOIN customers c ON c.id = p.customer_id
		 JOIN users u ON u.id = c.user_id
		 WHERE p.agent_id = ?
		 ORDER BY p.created_at DESC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPoliciesWithCustomer(rows)
}

// ListByCustomer returns all policies owned by a customer with the
// managing agent's name.
func (r *PolicyRepo) ListByCustomer(ctx context.Context, customerID uint64) ([]PolicyWithAgent, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+prefixCols("p", policyCols)+`, u.name
		 FROM policies p
		 JOIN agents a ON a.id = p.agent_id
		 JOIN users u ON u.id = a.user_id
		 WHERE p.customer_id = ?
		 ORDER BY p.created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PolicyWithAgent{}
	for rows.Next() {
		var p model.Policy
		var lastRenewal, docUploaded sql.NullTime
		var docName, docType sql.NullString
		var agentName string
		err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.PolicyNumber, &p.MobileNo,
			&p.SumAssured, &p.CompanyName, &p.Premium, &p.StartDate, &p.RenewalDate,
			&p.CustomerID, &p.AgentID, &p.IsActive, &lastRenewal,
			&docName, &docType, &docUploaded, &p.CreatedAt, &p.UpdatedAt, &agentName)
		if err != nil {
			return nil, err
		}
		assignNullable(&p, lastRenewal, docName, docType, docUploaded)
		out = append(out, PolicyWithAgent{Policy: p, AgentName: agentName})
	}
	return out, rows.Err()
}

// Filter returns the matching page of policies plus the total match count
// for pagination.
func (r *PolicyRepo) Filter(ctx context.Context, f PolicyFilter) ([]PolicyWithCustomer, int, error) {
	where, args := f.whereClause("")

	var total int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM policies WHERE "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	qualified, args := f.whereClause("p.")
	limit, offset := f.limitOffset()
	query := `SELECT ` + prefixCols("p", policyCols) + `, u.name, u.email, u.username
		 FROM policies p
		 JOIN customers c ON c.id = p.customer_id
		 JOIN users u ON u.id = c.user_id
		 WHERE ` + qualified + `
		 ORDER BY p.` + f.orderClause() + `
		 LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	list, err := collectPoliciesWithCustomer(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// RenewingInMonth returns the agent's policies whose renewal falls in the
// given month of the current or next year.
func (r *PolicyRepo) RenewingInMonth(ctx context.Context, agentID uint64, month int) ([]PolicyWithCustomer, error) {
	year := time.Now().UTC().Year()
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+prefixCols("p", policyCols)+`, u.name, u.email, u.username
		 FROM policies p
		 JOIN customers c ON c.id = p.customer_id
		 JOIN users u ON u.id = c.user_id
		 WHERE p.agent_id = ? AND MONTH(p.renewal_date) = ? AND YEAR(p.renewal_date) IN (?, ?)
		 ORDER BY p.renewal_date`, agentID, month, year, year+1)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPoliciesWithCustomer(rows)
}

// SaveDocument stores (or overwrites) the policy's attached PDF.
func (r *PolicyRepo) SaveDocument(ctx context.Context, id uint64, data []byte, contentType, filename string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE policies SET document_data=?, document_type=?, document_name=?, document_uploaded_at=?
		 WHERE id=?`,
		data, contentType, filename, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Document returns the stored blob and its metadata, or ErrNoDocument when
// nothing is attached.
func (r *PolicyRepo) Document(ctx context.Context, id uint64) (data []byte, contentType, filename string, err error) {
	var blob []byte
	var ct, name sql.NullString
	err = r.DB.QueryRowContext(ctx,
		"SELECT document_data, document_type, document_name FROM policies WHERE id=? LIMIT 1", id).
		Scan(&blob, &ct, &name)
	if err != nil {
		return nil, "", "", err
	}
	if len(blob) == 0 || !name.Valid {
		return nil, "", "", ErrNoDocument
	}
	return blob, ct.String, name.String, nil
}

// helpers

func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

func assignNullable(p *model.Policy, lastRenewal sql.NullTime, docName, docType sql.NullString, docUploaded sql.NullTime) {
	if lastRenewal.Valid {
		t := lastRenewal.Time
		p.LastRenewalDate = &t
	}
	if docName.Valid {
		s := docName.String
		p.DocumentName = &s
	}
	if docType.Valid {
		s := docType.String
		p.DocumentType = &s
	}
	if docUploaded.Valid {
		t := docUploaded.Time
		p.DocumentUploaded = &t
	}
}

func collectPoliciesWithCustomer(rows *sql.Rows) ([]PolicyWithCustomer, error) {
	out := []PolicyWithCustomer{}
	for rows.Next() {
		var p model.Policy
		var lastRenewal, docUploaded sql.NullTime
		var docName, docType sql.NullString
		var name, email, username string
		err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.PolicyNumber, &p.MobileNo,
			&p.SumAssured, &p.CompanyName, &p.Premium, &p.StartDate, &p.RenewalDate,
			&p.CustomerID, &p.AgentID, &p.IsActive, &lastRenewal,
			&docName, &docType, &docUploaded, &p.CreatedAt, &p.UpdatedAt,
			&name, &email, &username)
		if err != nil {
			return nil, err
		}
		assignNullable(&p, lastRenewal, docName, docType, docUploaded)
		out = append(out, PolicyWithCustomer{
			Policy:           p,
			CustomerName:     name,
			CustomerEmail:    email,
			CustomerUsername: username,
		})
	}
	return out, rows.Err()
}

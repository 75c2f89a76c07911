// Copyright 2025 The Netipam Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite implements the hierarchy store on sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/netip"
	"strings"
	"sync"

	"github.com/netipam/netipam/ipam"
	"github.com/netipam/netipam/pkg/netval"
	"github.com/netipam/netipam/private/storage/db"
)

var _ ipam.DB = (*Backend)(nil)

type Backend struct {
	db *sql.DB
	*executor
}

// New returns a new sqlite backend opening a database at the given path. If
// no database exists, one is created. If the schema version of the stored
// database differs from the one in schema.go, an error is returned.
func New(path string) (*Backend, error) {
	sdb, err := db.NewSqlite(path, Schema, SchemaVersion)
	if err != nil {
		return nil, err
	}
	return &Backend{
		executor: &executor{db: sdb},
		db:       sdb,
	}, nil
}

// SetMaxOpenConns sets the maximum number of open connections.
func (b *Backend) SetMaxOpenConns(maxOpenConns int) {
	b.db.SetMaxOpenConns(maxOpenConns)
}

// SetMaxIdleConns sets the maximum number of idle connections.
func (b *Backend) SetMaxIdleConns(maxIdleConns int) {
	b.db.SetMaxIdleConns(maxIdleConns)
}

// BeginTransaction begins a transaction on the database. The transaction
// starts in immediate mode: it owns the write lock from the first statement,
// so concurrent structural mutations serialize.
func (b *Backend) BeginTransaction(ctx context.Context,
	opts *sql.TxOptions) (ipam.Transaction, error) {

	b.Lock()
	defer b.Unlock()
	tx, err := b.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, db.NewTxError("create tx", err)
	}
	return &transaction{
		executor: &executor{db: tx},
		tx:       tx,
	}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// DB returns the underlying database handle, for tests and maintenance.
func (b *Backend) DB() *sql.DB {
	return b.db
}

var _ ipam.Transaction = (*transaction)(nil)

type transaction struct {
	*executor
	tx *sql.Tx
}

func (tx *transaction) Commit() error {
	tx.Lock()
	defer tx.Unlock()
	return tx.tx.Commit()
}

func (tx *transaction) Rollback() error {
	tx.Lock()
	defer tx.Unlock()
	err := tx.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

var _ ipam.ReadWrite = (*executor)(nil)

type executor struct {
	sync.RWMutex
	db db.Sqler
}

const prefixCols = "id, namespace_id, family, first, length, type, parent_id, attrs"
const addressCols = "id, namespace_id, family, addr, mask_length, parent_id, attrs"

// isUniqueViolation classifies constraint errors across both sqlite drivers.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

func addrBytes(a netip.Addr) []byte {
	if a.Is4() {
		b := a.As4()
		return b[:]
	}
	b := a.As16()
	return b[:]
}

func addrFromBytes(b []byte) (netip.Addr, bool) {
	return netip.AddrFromSlice(b)
}

func encodeAttrs(attrs ipam.Attrs) (sql.NullString, error) {
	if len(attrs) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return sql.NullString{}, db.NewInputDataError("encoding attrs", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeAttrs(raw sql.NullString) (ipam.Attrs, error) {
	if !raw.Valid {
		return nil, nil
	}
	var attrs ipam.Attrs
	if err := json.Unmarshal([]byte(raw.String), &attrs); err != nil {
		return nil, db.NewDataError("decoding attrs", err)
	}
	return attrs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrefix(row rowScanner) (ipam.Prefix, error) {
	var (
		p      ipam.Prefix
		family int
		first  []byte
		length int
		ptype  int
		parent sql.NullInt64
		attrs  sql.NullString
	)
	err := row.Scan(&p.ID, &p.Namespace, &family, &first, &length, &ptype, &parent, &attrs)
	if err != nil {
		return ipam.Prefix{}, err
	}
	addr, ok := addrFromBytes(first)
	if !ok {
		return ipam.Prefix{}, db.NewDataError("invalid address bytes", nil, "len", len(first))
	}
	p.Value = netval.FromPrefix(netip.PrefixFrom(addr, length))
	p.Type = ipam.PrefixType(ptype)
	if parent.Valid {
		p.Parent = ipam.PrefixID(parent.Int64)
	}
	if p.Attrs, err = decodeAttrs(attrs); err != nil {
		return ipam.Prefix{}, err
	}
	return p, nil
}

func scanAddress(row rowScanner) (ipam.IPAddress, error) {
	var (
		a      ipam.IPAddress
		family int
		raw    []byte
		attrs  sql.NullString
	)
	err := row.Scan(&a.ID, &a.Namespace, &family, &raw, &a.MaskLen, &a.Parent, &attrs)
	if err != nil {
		return ipam.IPAddress{}, err
	}
	addr, ok := addrFromBytes(raw)
	if !ok {
		return ipam.IPAddress{}, db.NewDataError("invalid address bytes", nil, "len", len(raw))
	}
	a.Addr = addr
	if a.Attrs, err = decodeAttrs(attrs); err != nil {
		return ipam.IPAddress{}, err
	}
	return a, nil
}

func (e *executor) queryPrefixes(ctx context.Context, query string,
	args ...any) ([]ipam.Prefix, error) {

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.NewReadError("selecting prefixes", err)
	}
	defer rows.Close()
	var res []ipam.Prefix
	for rows.Next() {
		p, err := scanPrefix(rows)
		if err != nil {
			return nil, db.NewReadError("scanning prefix", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (e *executor) NamespaceByID(ctx context.Context,
	id ipam.NamespaceID) (ipam.Namespace, error) {

	e.RLock()
	defer e.RUnlock()
	var ns ipam.Namespace
	err := e.db.QueryRowContext(ctx,
		`SELECT id, name FROM namespaces WHERE id = ?`, id).Scan(&ns.ID, &ns.Name)
	if err == sql.ErrNoRows {
		return ipam.Namespace{}, ipam.ErrNotFound
	}
	if err != nil {
		return ipam.Namespace{}, db.NewReadError("selecting namespace", err)
	}
	return ns, nil
}

func (e *executor) NamespaceByName(ctx context.Context,
	name string) (ipam.Namespace, error) {

	e.RLock()
	defer e.RUnlock()
	var ns ipam.Namespace
	err := e.db.QueryRowContext(ctx,
		`SELECT id, name FROM namespaces WHERE name = ?`, name).Scan(&ns.ID, &ns.Name)
	if err == sql.ErrNoRows {
		return ipam.Namespace{}, ipam.ErrNotFound
	}
	if err != nil {
		return ipam.Namespace{}, db.NewReadError("selecting namespace", err)
	}
	return ns, nil
}

func (e *executor) NamespaceInUse(ctx context.Context,
	id ipam.NamespaceID) (bool, error) {

	e.RLock()
	defer e.RUnlock()
	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM prefixes WHERE namespace_id = ?1)
			+ (SELECT COUNT(*) FROM addresses WHERE namespace_id = ?1)
			+ (SELECT COUNT(*) FROM vrfs WHERE namespace_id = ?1)`, id).Scan(&n)
	if err != nil {
		return false, db.NewReadError("counting namespace references", err)
	}
	return n > 0, nil
}

func (e *executor) PrefixByID(ctx context.Context,
	id ipam.PrefixID) (ipam.Prefix, error) {

	e.RLock()
	defer e.RUnlock()
	p, err := scanPrefix(e.db.QueryRowContext(ctx,
		`SELECT `+prefixCols+` FROM prefixes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return ipam.Prefix{}, ipam.ErrNotFound
	}
	if err != nil {
		return ipam.Prefix{}, db.NewReadError("selecting prefix", err)
	}
	return p, nil
}

func (e *executor) PrefixByValue(ctx context.Context, ns ipam.NamespaceID,
	v netval.Value) (ipam.Prefix, error) {

	e.RLock()
	defer e.RUnlock()
	p, err := scanPrefix(e.db.QueryRowContext(ctx,
		`SELECT `+prefixCols+` FROM prefixes
		WHERE namespace_id = ? AND family = ? AND first = ? AND length = ?`,
		ns, int(v.Family()), addrBytes(v.First()), v.Bits()))
	if err == sql.ErrNoRows {
		return ipam.Prefix{}, ipam.ErrNotFound
	}
	if err != nil {
		return ipam.Prefix{}, db.NewReadError("selecting prefix", err)
	}
	return p, nil
}

func (e *executor) Containing(ctx context.Context, ns ipam.NamespaceID,
	v netval.Value) ([]ipam.Prefix, error) {

	e.RLock()
	defer e.RUnlock()
	return e.queryPrefixes(ctx,
		`SELECT `+prefixCols+` FROM prefixes
		WHERE namespace_id = ? AND family = ? AND first <= ? AND last >= ?
			AND length < ?
		ORDER BY length DESC`,
		ns, int(v.Family()), addrBytes(v.First()), addrBytes(v.Last()), v.Bits())
}

func (e *executor) ContainingAddr(ctx context.Context, ns ipam.NamespaceID,
	addr netip.Addr) ([]ipam.Prefix, error) {

	e.RLock()
	defer e.RUnlock()
	family := 6
	if addr.Is4() {
		family = 4
	}
	return e.queryPrefixes(ctx,
		`SELECT `+prefixCols+` FROM prefixes
		WHERE namespace_id = ? AND family = ? AND first <= ? AND last >= ?
		ORDER BY length DESC`,
		ns, family, addrBytes(addr), addrBytes(addr))
}

func (e *executor) ContainedBy(ctx context.Context, ns ipam.NamespaceID,
	v netval.Value) ([]ipam.Prefix, error) {

	e.RLock()
	defer e.RUnlock()
	return e.queryPrefixes(ctx,
		`SELECT `+prefixCols+` FROM prefixes
		WHERE namespace_id = ? AND family = ? AND first >= ? AND last <= ?
			AND length > ?
		ORDER BY first, length`,
		ns, int(v.Family()), addrBytes(v.First()), addrBytes(v.Last()), v.Bits())
}

func (e *executor) Children(ctx context.Context,
	id ipam.PrefixID) ([]ipam.Prefix, error) {

	e.RLock()
	defer e.RUnlock()
	return e.queryPrefixes(ctx,
		`SELECT `+prefixCols+` FROM prefixes
		WHERE parent_id = ?
		ORDER BY family, first, length`, id)
}

func (e *executor) RootPrefixes(ctx context.Context,
	ns ipam.NamespaceID) ([]ipam.Prefix, error) {

	e.RLock()
	defer e.RUnlock()
	return e.queryPrefixes(ctx,
		`SELECT `+prefixCols+` FROM prefixes
		WHERE namespace_id = ? AND parent_id IS NULL
		ORDER BY family, first, length`, ns)
}

func (e *executor) AddressByID(ctx context.Context,
	id ipam.AddressID) (ipam.IPAddress, error) {

	e.RLock()
	defer e.RUnlock()
	a, err := scanAddress(e.db.QueryRowContext(ctx,
		`SELECT `+addressCols+` FROM addresses WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return ipam.IPAddress{}, ipam.ErrNotFound
	}
	if err != nil {
		return ipam.IPAddress{}, db.NewReadError("selecting address", err)
	}
	return a, nil
}

func (e *executor) AddressByValue(ctx context.Context, ns ipam.NamespaceID,
	addr netip.Addr) (ipam.IPAddress, error) {

	e.RLock()
	defer e.RUnlock()
	family := 6
	if addr.Is4() {
		family = 4
	}
	a, err := scanAddress(e.db.QueryRowContext(ctx,
		`SELECT `+addressCols+` FROM addresses
		WHERE namespace_id = ? AND family = ? AND addr = ?`,
		ns, family, addrBytes(addr)))
	if err == sql.ErrNoRows {
		return ipam.IPAddress{}, ipam.ErrNotFound
	}
	if err != nil {
		return ipam.IPAddress{}, db.NewReadError("selecting address", err)
	}
	return a, nil
}

func (e *executor) AddressesByParent(ctx context.Context,
	id ipam.PrefixID) ([]ipam.IPAddress, error) {

	e.RLock()
	defer e.RUnlock()
	rows, err := e.db.QueryContext(ctx,
		`SELECT `+addressCols+` FROM addresses
		WHERE parent_id = ?
		ORDER BY family, addr`, id)
	if err != nil {
		return nil, db.NewReadError("selecting addresses", err)
	}
	defer rows.Close()
	var res []ipam.IPAddress
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, db.NewReadError("scanning address", err)
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (e *executor) VRFByID(ctx context.Context, id ipam.VRFID) (ipam.VRF, error) {
	e.RLock()
	defer e.RUnlock()
	var v ipam.VRF
	err := e.db.QueryRowContext(ctx,
		`SELECT id, namespace_id, rd FROM vrfs WHERE id = ?`, id).
		Scan(&v.ID, &v.Namespace, &v.RouteDistinguisher)
	if err == sql.ErrNoRows {
		return ipam.VRF{}, ipam.ErrNotFound
	}
	if err != nil {
		return ipam.VRF{}, db.NewReadError("selecting vrf", err)
	}
	return v, nil
}

func (e *executor) VRFsByPrefix(ctx context.Context,
	id ipam.PrefixID) ([]ipam.VRF, error) {

	e.RLock()
	defer e.RUnlock()
	rows, err := e.db.QueryContext(ctx,
		`SELECT v.id, v.namespace_id, v.rd FROM vrfs v
		JOIN prefix_vrfs pv ON pv.vrf_id = v.id
		WHERE pv.prefix_id = ?
		ORDER BY v.rd`, id)
	if err != nil {
		return nil, db.NewReadError("selecting vrfs", err)
	}
	defer rows.Close()
	var res []ipam.VRF
	for rows.Next() {
		var v ipam.VRF
		if err := rows.Scan(&v.ID, &v.Namespace, &v.RouteDistinguisher); err != nil {
			return nil, db.NewReadError("scanning vrf", err)
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (e *executor) InsertNamespace(ctx context.Context,
	name string) (ipam.Namespace, error) {

	e.Lock()
	defer e.Unlock()
	res, err := e.db.ExecContext(ctx,
		`INSERT INTO namespaces (name) VALUES (?)`, name)
	if isUniqueViolation(err) {
		return ipam.Namespace{}, ipam.ErrDuplicateNamespace
	}
	if err != nil {
		return ipam.Namespace{}, db.NewWriteError("inserting namespace", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ipam.Namespace{}, db.NewWriteError("namespace id", err)
	}
	return ipam.Namespace{ID: ipam.NamespaceID(id), Name: name}, nil
}

func (e *executor) DeleteNamespace(ctx context.Context, id ipam.NamespaceID) error {
	e.Lock()
	defer e.Unlock()
	res, err := e.db.ExecContext(ctx, `DELETE FROM namespaces WHERE id = ?`, id)
	if err != nil {
		return db.NewWriteError("deleting namespace", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ipam.ErrNotFound
	}
	return nil
}

func (e *executor) InsertPrefix(ctx context.Context,
	p ipam.Prefix) (ipam.Prefix, error) {

	e.Lock()
	defer e.Unlock()
	attrs, err := encodeAttrs(p.Attrs)
	if err != nil {
		return ipam.Prefix{}, err
	}
	var parent sql.NullInt64
	if p.Parent != 0 {
		parent = sql.NullInt64{Int64: int64(p.Parent), Valid: true}
	}
	v := p.Value
	res, err := e.db.ExecContext(ctx,
		`INSERT INTO prefixes (namespace_id, family, first, last, length, type,
			parent_id, attrs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Namespace, int(v.Family()), addrBytes(v.First()), addrBytes(v.Last()),
		v.Bits(), int(p.Type), parent, attrs)
	if isUniqueViolation(err) {
		return ipam.Prefix{}, ipam.ErrDuplicatePrefix
	}
	if err != nil {
		return ipam.Prefix{}, db.NewWriteError("inserting prefix", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ipam.Prefix{}, db.NewWriteError("prefix id", err)
	}
	p.ID = ipam.PrefixID(id)
	return p, nil
}

func (e *executor) UpdatePrefixParent(ctx context.Context, id ipam.PrefixID,
	parent ipam.PrefixID) error {

	e.Lock()
	defer e.Unlock()
	var np sql.NullInt64
	if parent != 0 {
		np = sql.NullInt64{Int64: int64(parent), Valid: true}
	}
	res, err := e.db.ExecContext(ctx,
		`UPDATE prefixes SET parent_id = ? WHERE id = ?`, np, id)
	if err != nil {
		return db.NewWriteError("updating prefix parent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ipam.ErrNotFound
	}
	return nil
}

func (e *executor) UpdatePrefixNamespace(ctx context.Context, id ipam.PrefixID,
	ns ipam.NamespaceID, parent ipam.PrefixID) error {

	e.Lock()
	defer e.Unlock()
	var np sql.NullInt64
	if parent != 0 {
		np = sql.NullInt64{Int64: int64(parent), Valid: true}
	}
	res, err := e.db.ExecContext(ctx,
		`UPDATE prefixes SET namespace_id = ?, parent_id = ? WHERE id = ?`,
		ns, np, id)
	if isUniqueViolation(err) {
		return ipam.ErrDuplicatePrefix
	}
	if err != nil {
		return db.NewWriteError("moving prefix", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ipam.ErrNotFound
	}
	return nil
}

func (e *executor) DeletePrefix(ctx context.Context, id ipam.PrefixID) error {
	e.Lock()
	defer e.Unlock()
	if _, err := e.db.ExecContext(ctx,
		`DELETE FROM prefix_vrfs WHERE prefix_id = ?`, id); err != nil {
		return db.NewWriteError("deleting vrf associations", err)
	}
	res, err := e.db.ExecContext(ctx, `DELETE FROM prefixes WHERE id = ?`, id)
	if err != nil {
		return db.NewWriteError("deleting prefix", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ipam.ErrNotFound
	}
	return nil
}

func (e *executor) InsertAddress(ctx context.Context,
	a ipam.IPAddress) (ipam.IPAddress, error) {

	e.Lock()
	defer e.Unlock()
	attrs, err := encodeAttrs(a.Attrs)
	if err != nil {
		return ipam.IPAddress{}, err
	}
	family := 6
	if a.Addr.Is4() {
		family = 4
	}
	res, err := e.db.ExecContext(ctx,
		`INSERT INTO addresses (namespace_id, family, addr, mask_length,
			parent_id, attrs)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Namespace, family, addrBytes(a.Addr), a.MaskLen, a.Parent, attrs)
	if isUniqueViolation(err) {
		return ipam.IPAddress{}, ipam.ErrDuplicateAddress
	}
	if err != nil {
		return ipam.IPAddress{}, db.NewWriteError("inserting address", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ipam.IPAddress{}, db.NewWriteError("address id", err)
	}
	a.ID = ipam.AddressID(id)
	return a, nil
}

func (e *executor) UpdateAddressParent(ctx context.Context, id ipam.AddressID,
	parent ipam.PrefixID) error {

	e.Lock()
	defer e.Unlock()
	res, err := e.db.ExecContext(ctx,
		`UPDATE addresses SET parent_id = ? WHERE id = ?`, parent, id)
	if err != nil {
		return db.NewWriteError("updating address parent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ipam.ErrNotFound
	}
	return nil
}

func (e *executor) UpdateAddressNamespace(ctx context.Context, id ipam.AddressID,
	ns ipam.NamespaceID, parent ipam.PrefixID) error {

	e.Lock()
	defer e.Unlock()
	res, err := e.db.ExecContext(ctx,
		`UPDATE addresses SET namespace_id = ?, parent_id = ? WHERE id = ?`,
		ns, parent, id)
	if isUniqueViolation(err) {
		return ipam.ErrDuplicateAddress
	}
	if err != nil {
		return db.NewWriteError("moving address", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ipam.ErrNotFound
	}
	return nil
}

func (e *executor) DeleteAddress(ctx context.Context, id ipam.AddressID) error {
	e.Lock()
	defer e.Unlock()
	res, err := e.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = ?`, id)
	if err != nil {
		return db.NewWriteError("deleting address", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ipam.ErrNotFound
	}
	return nil
}

func (e *executor) InsertVRF(ctx context.Context, v ipam.VRF) (ipam.VRF, error) {
	e.Lock()
	defer e.Unlock()
	res, err := e.db.ExecContext(ctx,
		`INSERT INTO vrfs (namespace_id, rd) VALUES (?, ?)`,
		v.Namespace, v.RouteDistinguisher)
	if isUniqueViolation(err) {
		return ipam.VRF{}, ipam.ErrDuplicateVRF
	}
	if err != nil {
		return ipam.VRF{}, db.NewWriteError("inserting vrf", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ipam.VRF{}, db.NewWriteError("vrf id", err)
	}
	v.ID = ipam.VRFID(id)
	return v, nil
}

func (e *executor) AttachVRF(ctx context.Context, prefix ipam.PrefixID,
	vrf ipam.VRFID) error {

	e.Lock()
	defer e.Unlock()
	_, err := e.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO prefix_vrfs (prefix_id, vrf_id) VALUES (?, ?)`,
		prefix, vrf)
	if err != nil {
		return db.NewWriteError("attaching vrf", err)
	}
	return nil
}

func (e *executor) DetachVRF(ctx context.Context, prefix ipam.PrefixID,
	vrf ipam.VRFID) error {

	e.Lock()
	defer e.Unlock()
	_, err := e.db.ExecContext(ctx,
		`DELETE FROM prefix_vrfs WHERE prefix_id = ? AND vrf_id = ?`,
		prefix, vrf)
	if err != nil {
		return db.NewWriteError("detaching vrf", err)
	}
	return nil
}

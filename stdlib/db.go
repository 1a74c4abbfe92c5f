package stdlib

import (
	"database/sql"
	"fmt"
	"time"

	"lua/object"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	dbConnections  = map[int64]*sql.DB{}
	dbTransactions = map[int64]*sql.Tx{}
)

// OpenDB installs a db table with connection, query and transaction
// primitives over database/sql. Handles are opaque integers issued by the
// runtime; scripts never hold driver objects directly.
func OpenDB(rt Runtime) {
	db := object.NewTable()
	db.Set(&object.String{Value: "connect"}, &object.Builtin{Name: "db.connect", Fn: fnDBConnect})
	db.Set(&object.String{Value: "query"}, &object.Builtin{Name: "db.query", Fn: fnDBQuery})
	db.Set(&object.String{Value: "exec"}, &object.Builtin{Name: "db.exec", Fn: fnDBExec})
	db.Set(&object.String{Value: "begin"}, &object.Builtin{Name: "db.begin", Fn: fnDBBegin})
	db.Set(&object.String{Value: "commit"}, &object.Builtin{Name: "db.commit", Fn: fnDBCommit})
	db.Set(&object.String{Value: "rollback"}, &object.Builtin{Name: "db.rollback", Fn: fnDBRollback})
	db.Set(&object.String{Value: "close"}, &object.Builtin{Name: "db.close", Fn: fnDBClose})
	rt.RegisterValue("db", db)
}

func handleArg(ctx object.EvaluatorContext, name string, args []object.Object) (int64, *object.RuntimeError) {
	if err := wantArgs(ctx, name, args, 1); err != nil {
		return 0, err
	}
	id, ok := object.ToInteger(args[0])
	if !ok {
		return 0, ctx.NewError(object.TypeError,
			"bad argument #1 to '%s' (handle expected, got %s)", name, object.TypeName(args[0]))
	}
	return id, nil
}

func stringArg(ctx object.EvaluatorContext, name string, args []object.Object, idx int) (string, *object.RuntimeError) {
	s, ok := argAt(args, idx).(*object.String)
	if !ok {
		return "", ctx.NewError(object.TypeError,
			"bad argument #%d to '%s' (string expected, got %s)", idx+1, name, object.TypeName(argAt(args, idx)))
	}
	return s.Value, nil
}

func fnDBConnect(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "db.connect", args, 2); err != nil {
		return nil, err
	}
	driver, err := stringArg(ctx, "db.connect", args, 0)
	if err != nil {
		return nil, err
	}
	dsn, err := stringArg(ctx, "db.connect", args, 1)
	if err != nil {
		return nil, err
	}

	conn, oerr := sql.Open(driver, dsn)
	if oerr != nil {
		return nil, ctx.NewError(object.RaisedError, "failed to open connection: %v", oerr)
	}
	if perr := conn.Ping(); perr != nil {
		conn.Close()
		return nil, ctx.NewError(object.RaisedError, "failed to ping database: %v", perr)
	}

	id := ctx.NextHandleID()
	dbConnections[id] = conn
	return []object.Object{&object.Integer{Value: id}}, nil
}

func fnDBQuery(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "db.query", args, 2); err != nil {
		return nil, err
	}
	id, err := handleArg(ctx, "db.query", args)
	if err != nil {
		return nil, err
	}
	query, err := stringArg(ctx, "db.query", args, 1)
	if err != nil {
		return nil, err
	}
	conn, ok := dbConnections[id]
	if !ok {
		return nil, ctx.NewError(object.RaisedError, "invalid connection handle")
	}

	params := sqlParams(args[2:])

	var rows *sql.Rows
	var qerr error
	if tx, isTx := dbTransactions[id]; isTx {
		rows, qerr = tx.Query(query, params...)
	} else {
		rows, qerr = conn.Query(query, params...)
	}
	if qerr != nil {
		return nil, ctx.NewError(object.RaisedError, "query failed: %v", qerr)
	}
	defer rows.Close()

	result, rerr := renderRows(ctx, rows)
	if rerr != nil {
		return nil, rerr
	}
	return []object.Object{result}, nil
}

func fnDBExec(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	if err := wantArgs(ctx, "db.exec", args, 2); err != nil {
		return nil, err
	}
	id, err := handleArg(ctx, "db.exec", args)
	if err != nil {
		return nil, err
	}
	query, err := stringArg(ctx, "db.exec", args, 1)
	if err != nil {
		return nil, err
	}
	conn, ok := dbConnections[id]
	if !ok {
		return nil, ctx.NewError(object.RaisedError, "invalid connection handle")
	}

	params := sqlParams(args[2:])

	var res sql.Result
	var xerr error
	if tx, isTx := dbTransactions[id]; isTx {
		res, xerr = tx.Exec(query, params...)
	} else {
		res, xerr = conn.Exec(query, params...)
	}
	if xerr != nil {
		return nil, ctx.NewError(object.RaisedError, "exec failed: %v", xerr)
	}

	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	out := object.NewTable()
	out.Set(&object.String{Value: "rows_affected"}, &object.Integer{Value: affected})
	out.Set(&object.String{Value: "last_insert_id"}, &object.Integer{Value: lastID})
	return []object.Object{out}, nil
}

func fnDBBegin(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	id, err := handleArg(ctx, "db.begin", args)
	if err != nil {
		return nil, err
	}
	conn, ok := dbConnections[id]
	if !ok {
		return nil, ctx.NewError(object.RaisedError, "invalid connection handle")
	}
	tx, terr := conn.Begin()
	if terr != nil {
		return nil, ctx.NewError(object.RaisedError, "failed to begin transaction: %v", terr)
	}
	dbTransactions[id] = tx
	return []object.Object{args[0]}, nil
}

func fnDBCommit(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	id, err := handleArg(ctx, "db.commit", args)
	if err != nil {
		return nil, err
	}
	tx, ok := dbTransactions[id]
	if !ok {
		return nil, ctx.NewError(object.RaisedError, "no open transaction for handle")
	}
	if cerr := tx.Commit(); cerr != nil {
		return nil, ctx.NewError(object.RaisedError, "failed to commit transaction: %v", cerr)
	}
	delete(dbTransactions, id)
	return []object.Object{args[0]}, nil
}

func fnDBRollback(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	id, err := handleArg(ctx, "db.rollback", args)
	if err != nil {
		return nil, err
	}
	tx, ok := dbTransactions[id]
	if !ok {
		return nil, ctx.NewError(object.RaisedError, "no open transaction for handle")
	}
	if rerr := tx.Rollback(); rerr != nil {
		return nil, ctx.NewError(object.RaisedError, "failed to rollback transaction: %v", rerr)
	}
	delete(dbTransactions, id)
	return []object.Object{args[0]}, nil
}

func fnDBClose(ctx object.EvaluatorContext, args []object.Object) ([]object.Object, *object.RuntimeError) {
	id, err := handleArg(ctx, "db.close", args)
	if err != nil {
		return nil, err
	}
	if tx, ok := dbTransactions[id]; ok {
		tx.Rollback()
		delete(dbTransactions, id)
	}
	if conn, ok := dbConnections[id]; ok {
		conn.Close()
		delete(dbConnections, id)
	}
	return []object.Object{}, nil
}

func sqlParams(args []object.Object) []interface{} {
	params := make([]interface{}, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case *object.Nil:
			params[i] = nil
		case *object.Integer:
			params[i] = v.Value
		case *object.Float:
			params[i] = v.Value
		case *object.String:
			params[i] = v.Value
		case *object.Boolean:
			params[i] = v.Value
		default:
			params[i] = arg.Inspect()
		}
	}
	return params
}

// renderRows materialises a result set as a sequence of row tables keyed by
// column name.
func renderRows(ctx object.EvaluatorContext, rows *sql.Rows) (*object.Table, *object.RuntimeError) {
	columns, cerr := rows.Columns()
	if cerr != nil {
		return nil, ctx.NewError(object.RaisedError, "failed to read columns: %v", cerr)
	}

	result := object.NewTable()
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if serr := rows.Scan(pointers...); serr != nil {
			return nil, ctx.NewError(object.RaisedError, "failed to scan row: %v", serr)
		}

		row := object.NewTable()
		for i, col := range columns {
			row.Set(&object.String{Value: col}, columnValue(values[i]))
		}
		result.Append(row)
	}
	if rerr := rows.Err(); rerr != nil {
		return nil, ctx.NewError(object.RaisedError, "row iteration failed: %v", rerr)
	}
	return result, nil
}

func columnValue(v interface{}) object.Object {
	if v == nil {
		return object.NIL
	}
	switch x := v.(type) {
	case int64:
		return &object.Integer{Value: x}
	case float64:
		return &object.Float{Value: x}
	case []byte:
		return &object.String{Value: string(x)}
	case string:
		return &object.String{Value: x}
	case bool:
		return object.NativeBoolToBooleanObject(x)
	case time.Time:
		return &object.String{Value: x.Format(time.RFC3339)}
	default:
		return &object.String{Value: fmt.Sprintf("%v", v)}
	}
}

package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// kvColumns holds the columns for the "kv" table.
	kvColumns = []*schema.Column{
		{Name: "key", Type: field.TypeString},
		{Name: "value", Type: field.TypeBytes},
		{Name: "updated_at", Type: field.TypeInt64},
	}
	kvTable = &schema.Table{
		Name:       "kv",
		Columns:    kvColumns,
		PrimaryKey: []*schema.Column{kvColumns[0]},
	}

	// sessionEventsColumns holds the columns for the "session_events" table.
	sessionEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64},
		{Name: "timestamp", Type: field.TypeInt64},
		{Name: "session_id", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString},
		{Name: "action", Type: field.TypeString},
		{Name: "batch", Type: field.TypeInt, Default: 0},
		{Name: "items_completed", Type: field.TypeInt, Default: 0},
		{Name: "correct_count", Type: field.TypeInt, Default: 0},
		{Name: "incorrect_count", Type: field.TypeInt, Default: 0},
		{Name: "reason", Type: field.TypeString, Default: ""},
	}
	sessionEventsTable = &schema.Table{
		Name:       "session_events",
		Columns:    sessionEventsColumns,
		PrimaryKey: []*schema.Column{sessionEventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "session_events_session",
				Columns: []*schema.Column{sessionEventsColumns[3]},
			},
			{
				Name:    "session_events_user_sequence",
				Columns: []*schema.Column{sessionEventsColumns[4], sessionEventsColumns[1]},
			},
		},
	}

	// answerEventsColumns holds the columns for the "answer_events" table.
	answerEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64},
		{Name: "timestamp", Type: field.TypeInt64},
		{Name: "session_id", Type: field.TypeString},
		{Name: "item_id", Type: field.TypeString},
		{Name: "sub_topic", Type: field.TypeString, Default: ""},
		{Name: "rating", Type: field.TypeInt},
		{Name: "selected_option", Type: field.TypeString, Nullable: true},
		{Name: "correct_option", Type: field.TypeString, Default: ""},
		{Name: "correct", Type: field.TypeBool},
		{Name: "timed_out", Type: field.TypeBool},
		{Name: "difficulty", Type: field.TypeString, Default: ""},
	}
	answerEventsTable = &schema.Table{
		Name:       "answer_events",
		Columns:    answerEventsColumns,
		PrimaryKey: []*schema.Column{answerEventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "answer_events_session",
				Columns: []*schema.Column{answerEventsColumns[3]},
			},
		},
	}

	// tables are created or upgraded on every Open.
	tables = []*schema.Table{
		kvTable,
		sessionEventsTable,
		answerEventsTable,
	}
)

// migrate brings the database up to the tables above using ent's
// migration engine. Columns are added but never dropped.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("init migration: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

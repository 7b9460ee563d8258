package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`CREATE INDEX ix_files_content_hash ON files (content_hash)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_files_library_path_id_sub_path ON files (library_path_id, sub_path)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP INDEX IF EXISTS ix_files_library_path_id_sub_path")
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec("DROP INDEX IF EXISTS ix_files_content_hash")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}

package scandb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gowvp/scanbox/internal/core/scan"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func generateMockDB() (*gorm.DB, sqlmock.Sqlmock, error) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		return nil, nil, err
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	return db, mock, nil
}

func TestDetectionGet(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	detectionDB := NewDB(db).Detection()

	mock.ExpectQuery(`SELECT \* FROM "detections" WHERE barcode=\$1 (.+) LIMIT \$2`).
		WithArgs("ABC123", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "barcode", "day"}).AddRow(1, "ABC123", "2024-01-05"))

	var out scan.Detection
	if err := detectionDB.Get(context.Background(), &out, orm.Where("barcode=?", "ABC123")); err != nil {
		t.Fatal(err)
	}
	if out.Barcode != "ABC123" {
		t.Fatalf("barcode = %s", out.Barcode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}

// 经由 Core 走完整的查询拼装：fragment 同时作为条码与日期的子串条件
func TestFindDetectionsByFragment(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
	}{
		{"exact barcode", "ABC123"},
		{"barcode substring", "ABC"},
		{"day", "2024-01-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := generateMockDB()
			if err != nil {
				t.Fatal(err)
			}
			core := scan.NewCore(NewDB(db))
			like := "%" + tt.fragment + "%"

			mock.ExpectQuery(`SELECT count\(\*\) FROM "detections" WHERE barcode LIKE \$1 OR day LIKE \$2`).
				WithArgs(like, like).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
			mock.ExpectQuery(`SELECT \* FROM "detections" WHERE barcode LIKE \$1 OR day LIKE \$2 ORDER BY observed_at DESC LIMIT \$3`).
				WithArgs(like, like, 20).
				WillReturnRows(sqlmock.NewRows([]string{"id", "barcode", "day"}).AddRow(1, "ABC123", "2024-01-05"))

			items, total, err := core.FindDetections(context.Background(), &scan.FindDetectionsInput{
				PagerFilter: web.PagerFilter{Page: 1, Size: 20},
				Fragment:    tt.fragment,
			})
			if err != nil {
				t.Fatal(err)
			}
			if total != 1 || len(items) != 1 || items[0].Barcode != "ABC123" {
				t.Fatalf("total=%d items=%+v", total, items)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatal("ExpectationsWereMet err:", err)
			}
		})
	}
}

// fragment 为空时不拼 WHERE，返回全部
func TestFindDetectionsWithoutFragment(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	core := scan.NewCore(NewDB(db))

	mock.ExpectQuery(`SELECT count\(\*\) FROM "detections"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT \* FROM "detections" ORDER BY observed_at DESC LIMIT \$1`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "barcode", "day"}).
			AddRow(2, "XYZ789", "2024-01-06").
			AddRow(1, "ABC123", "2024-01-05"))

	items, total, err := core.FindDetections(context.Background(), &scan.FindDetectionsInput{
		PagerFilter: web.PagerFilter{Page: 1, Size: 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("total=%d items=%d", total, len(items))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}

func TestDailyReport(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	core := scan.NewCore(NewDB(db))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT day, COUNT\(\*\) as total FROM "detections" GROUP BY (.+) ORDER BY day DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"day", "total"}).
			AddRow("2024-01-06", 3).
			AddRow("2024-01-05", 1))
	mock.ExpectCommit()

	items, err := core.DailyReport(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d rows, want 2", len(items))
	}
	if items[0].Day != "2024-01-06" || items[0].Total != 3 {
		t.Fatalf("first row = %+v", items[0])
	}
	if items[1].Day != "2024-01-05" || items[1].Total != 1 {
		t.Fatalf("second row = %+v", items[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}

func TestDetectionAdd(t *testing.T) {
	db, mock, err := generateMockDB()
	if err != nil {
		t.Fatal(err)
	}
	detectionDB := NewDB(db).Detection()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "detections"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	in := scan.Detection{Barcode: "ABC123", Day: "2024-01-05"}
	if err := detectionDB.Add(context.Background(), &in); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal("ExpectationsWereMet err:", err)
	}
}

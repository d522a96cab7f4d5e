package store

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const mysqlDupEntry = 1062

// isDuplicate recognizes unique-constraint violations. gorm's TranslateError
// covers both drivers we use; the raw MySQL error number and the sqlite
// message are kept as fallbacks for drivers the translator doesn't classify.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDupEntry {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

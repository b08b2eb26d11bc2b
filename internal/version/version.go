// Package version хранит сведения о сборке, заданные через -ldflags.
package version

import "fmt"

// Service — имя сервиса в трейсах, логах и User-Agent.
const Service = "florist"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает коммит сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// UserAgent возвращает заголовок для исходящих HTTP-запросов.
func UserAgent() string { return Service + "/" + version }

func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", Service, version, commit, date)
}

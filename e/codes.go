package e

// Constants in here define error codes that are unique to a package/function.
// The first two characters define the package, within this repo, and the
// second two characters define the function/file within that package. Each
// call site then defines its own ECode constant by appending a two character
// id, i.e. ECode010101 = Code0101 + "01".
//
// Valid values for the characters are: 0-9 and A-Z.

const (
	// package: sql
	Code0101 = "0101" // package:sql | sql/sql.go
	Code0102 = "0102" // package:sql | sql/row.go
	Code0103 = "0103" // package:sql | sql/rows.go

	// package: migration
	Code0201 = "0201" // package:migration | migration/migrator.go
	Code0202 = "0202" // package:migration | migration/migration_list.go
	Code0203 = "0203" // package:migration | migration/flyway.go
	Code0204 = "0204" // package:migration/sqlmodel | migration/sqlmodel/history.go

	// package: journal
	Code0301 = "0301" // package:journal | journal/journal.go
	Code0302 = "0302" // package:journal | journal/store.go
	Code0303 = "0303" // package:journal/sqlmodel | journal/sqlmodel/rollback_log.go
	Code0304 = "0304" // package:journal/sqlmodel | journal/sqlmodel/clock.go
	Code0305 = "0305" // package:journal | journal/install.go

	// package: paramstore
	Code0401 = "0401" // package:paramstore | paramstore/paramstore.go

	// package: artifact
	Code0501 = "0501" // package:artifact | artifact/s3.go
	Code0502 = "0502" // package:artifact | artifact/uri.go

	// package: kafka
	Code0601 = "0601" // package:kafka | kafka/connection.go
	Code0602 = "0602" // package:kafka | kafka/publisher.go
	Code0603 = "0603" // package:kafka/aws/ec2 | kafka/aws/ec2/sasl.go

	// package: deploy
	Code0701 = "0701" // package:deploy | deploy/deploy.go
	Code0702 = "0702" // package:deploy | deploy/config.go
	Code0703 = "0703" // package:deploy | deploy/result.go
	Code0704 = "0704" // package:deploy | deploy/status.go
)

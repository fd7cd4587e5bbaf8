package tests

import "github.com/minorm/minorm"

// Person is the model the root suites run against.
type Person struct {
	minorm.Model
	Name     string
	Surname  string
	Nickname *string
	Age      int `orm:"default:18"`
}

// Article carries a custom column type.
type Article struct {
	ID    int64
	Title string
	Tags  Tags
}

// DDL per dialect name, in creation order.
var DDL = map[string][]string{
	"sqlite": {
		`CREATE TABLE "person" (
			"id" INTEGER PRIMARY KEY AUTOINCREMENT,
			"name" TEXT NOT NULL UNIQUE,
			"surname" TEXT NOT NULL,
			"nickname" TEXT,
			"age" INTEGER
		)`,
		`CREATE TABLE "article" (
			"id" INTEGER PRIMARY KEY AUTOINCREMENT,
			"title" TEXT,
			"tags" TEXT
		)`,
	},
	"postgres": {
		`CREATE TABLE "person" (
			"id" BIGSERIAL PRIMARY KEY,
			"name" TEXT NOT NULL UNIQUE,
			"surname" TEXT NOT NULL,
			"nickname" TEXT,
			"age" INTEGER
		)`,
		`CREATE TABLE "article" (
			"id" BIGSERIAL PRIMARY KEY,
			"title" TEXT,
			"tags" TEXT
		)`,
	},
}

// Tables lists the tables created by DDL, for teardown.
var Tables = []string{"person", "article"}

package minorm

// Model can be embedded to declare the conventional integer id primary key.
//
//	type Person struct {
//		minorm.Model
//		Name    string
//		Surname string
//	}
type Model struct {
	ID int64 `orm:"column:id;primaryKey"`
}

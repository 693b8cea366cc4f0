package model

// User is the single managed entity. ID is assigned by storage on first save
// and stays zero until then.
type User struct {
	ID    uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	Name  string `json:"name" gorm:"size:255"`
	Email string `json:"email" gorm:"size:255"`
	Age   int    `json:"age"`
}

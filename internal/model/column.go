package model

// Column 宽列存储的一列（SQL 适配器用）。Name 以 bytea/blob 存储，保证按字节序比较
type Column struct {
	Family string `gorm:"primaryKey;type:varchar(32)"`
	RowKey string `gorm:"primaryKey;type:varchar(191)"`
	Name   []byte `gorm:"primaryKey"`
	Value  []byte
}

func (Column) TableName() string { return "columns" }

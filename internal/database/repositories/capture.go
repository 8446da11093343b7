package repositories

import (
	"time"

	"netlynx/internal/database/models"

	"gorm.io/gorm"
)

type CaptureRepository interface {
	Create(capture *models.Capture) error
	FindByName(name string) (*models.Capture, error)
	FindAll() ([]*models.Capture, error)
	Update(capture *models.Capture) error
	UpdateTracking(name string, position int64, inode int64, lastLine string) error
	UpdateConstants(name string, constants string, timeTickOffset int64) error
	Delete(name string) error
}

type captureRepo struct {
	db *gorm.DB
}

func NewCaptureRepository(db *gorm.DB) CaptureRepository {
	return &captureRepo{db: db}
}

func (r *captureRepo) Create(capture *models.Capture) error {
	return r.db.Create(capture).Error
}

func (r *captureRepo) FindByName(name string) (*models.Capture, error) {
	var capture models.Capture
	err := r.db.Where("name = ?", name).First(&capture).Error
	if err != nil {
		return nil, err
	}
	return &capture, nil
}

func (r *captureRepo) FindAll() ([]*models.Capture, error) {
	var captures []*models.Capture
	err := r.db.Order("name").Find(&captures).Error
	return captures, err
}

func (r *captureRepo) Update(capture *models.Capture) error {
	return r.db.Save(capture).Error
}

func (r *captureRepo) UpdateTracking(name string, position int64, inode int64, lastLine string) error {
	now := time.Now()
	return r.db.Exec(
		"UPDATE captures SET last_position = ?, last_inode = ?, last_line_content = ?, last_read_at = ?, updated_at = ? WHERE name = ?",
		position, inode, lastLine, now, now, name,
	).Error
}

func (r *captureRepo) UpdateConstants(name string, constants string, timeTickOffset int64) error {
	return r.db.Model(&models.Capture{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"constants":        constants,
			"time_tick_offset": timeTickOffset,
		}).Error
}

// Delete removes a capture together with its sources and events
func (r *captureRepo) Delete(name string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("capture_name = ?", name).Delete(&models.EventRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("capture_name = ?", name).Delete(&models.SourceRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", name).Delete(&models.Capture{}).Error
	})
}

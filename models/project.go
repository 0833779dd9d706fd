package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Project 聚合根：一个项目一行记录，实体列表存 JSON 列，
// 每次写入整行替换，保证聚合原子性。
type Project struct {
	ID           string        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title        string        `json:"title"`
	Text         string        `gorm:"type:longtext" json:"text"`
	StylePreset  string        `json:"stylePreset"`
	StylePrompt  string        `json:"stylePrompt"`
	ArtDirection ArtDirection  `gorm:"type:json" json:"artDirection"`
	Characters   CharacterList `gorm:"type:json" json:"characters"`
	Scenes       SceneList     `gorm:"type:json" json:"scenes"`
	Props        PropList      `gorm:"type:json" json:"props"`
	Frames       FrameList     `gorm:"type:json" json:"frames"`
	VideoTasks   VideoTaskList `gorm:"type:json" json:"videoTasks"`
	ExportURL    string        `json:"exportUrl,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}

// ArtDirection 美术指导配置
type ArtDirection struct {
	SelectedStyleID   string                   `json:"selectedStyleId,omitempty"`
	StyleConfig       map[string]interface{}   `json:"styleConfig,omitempty"`
	CustomStyles      []map[string]interface{} `json:"customStyles,omitempty"`
	AIRecommendations []map[string]interface{} `json:"aiRecommendations,omitempty"`
}

type CharacterList []Character
type SceneList []Scene
type PropList []Prop
type FrameList []StoryboardFrame
type VideoTaskList []VideoTask

// JSON 列的 driver.Valuer / sql.Scanner 实现
func jsonValue(v interface{}) (driver.Value, error) {
	return json.Marshal(v)
}

func jsonScan(dst interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New(fmt.Sprint("failed to unmarshal JSON value:", value))
		}
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dst)
}

func (l CharacterList) Value() (driver.Value, error)  { return jsonValue(l) }
func (l *CharacterList) Scan(v interface{}) error     { return jsonScan(l, v) }
func (l SceneList) Value() (driver.Value, error)      { return jsonValue(l) }
func (l *SceneList) Scan(v interface{}) error         { return jsonScan(l, v) }
func (l PropList) Value() (driver.Value, error)       { return jsonValue(l) }
func (l *PropList) Scan(v interface{}) error          { return jsonScan(l, v) }
func (l FrameList) Value() (driver.Value, error)      { return jsonValue(l) }
func (l *FrameList) Scan(v interface{}) error         { return jsonScan(l, v) }
func (l VideoTaskList) Value() (driver.Value, error)  { return jsonValue(l) }
func (l *VideoTaskList) Scan(v interface{}) error     { return jsonScan(l, v) }
func (a ArtDirection) Value() (driver.Value, error)   { return jsonValue(a) }
func (a *ArtDirection) Scan(v interface{}) error      { return jsonScan(a, v) }

// 聚合内查找，返回可写指针；找不到返回 nil
func (p *Project) FindCharacter(id string) *Character {
	for i := range p.Characters {
		if p.Characters[i].ID == id {
			return &p.Characters[i]
		}
	}
	return nil
}

func (p *Project) FindScene(id string) *Scene {
	for i := range p.Scenes {
		if p.Scenes[i].ID == id {
			return &p.Scenes[i]
		}
	}
	return nil
}

func (p *Project) FindProp(id string) *Prop {
	for i := range p.Props {
		if p.Props[i].ID == id {
			return &p.Props[i]
		}
	}
	return nil
}

func (p *Project) FindFrame(id string) *StoryboardFrame {
	for i := range p.Frames {
		if p.Frames[i].ID == id {
			return &p.Frames[i]
		}
	}
	return nil
}

func (p *Project) FindVideoTask(id string) *VideoTask {
	for i := range p.VideoTasks {
		if p.VideoTasks[i].ID == id {
			return &p.VideoTasks[i]
		}
	}
	return nil
}

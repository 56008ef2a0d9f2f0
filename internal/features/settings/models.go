// Package settings: изменяемые документы настроек бонусов.
// models.go описывает типизированные документы и снимок для одного события.
//
// Проценты хранятся строками (как их вводит админка). Некорректная или
// пустая строка при расчёте считается нулём.
package settings

// Имена документов в таблице settings.
const (
	NameDirectBonus       = "directBonus"
	NameBuildingBonus     = "buildingBonus"
	NameMintingCommission = "mintingCommission"
	NameLevelBonus        = "levelBonus"
	NameMintingCap        = "mintingCap"
	NameSwitchingFee      = "switchingFee"
	NameDepositCommission = "depositCommission"
)

// Names: все известные документы.
var Names = []string{
	NameDirectBonus,
	NameBuildingBonus,
	NameMintingCommission,
	NameLevelBonus,
	NameMintingCap,
	NameSwitchingFee,
	NameDepositCommission,
}

// DirectBonus: процент прямого бонуса пригласившему при покупке пакета.
type DirectBonus struct {
	Percentage string `json:"percentage" yaml:"percentage"`
}

// BuildingBonus: проценты бонуса за построение структуры (бинарное дерево).
type BuildingBonus struct {
	Level1Percentage    string `json:"level1Percentage" yaml:"level1Percentage"`
	RemainingPercentage string `json:"remainingPercentage" yaml:"remainingPercentage"`
}

// RateTable: метка уровня ("5x", "10x", ..., "100x", "noInvestment") → процент.
type RateTable map[string]string

// MintingCommission: таблицы ставок минтинга по типу.
type MintingCommission struct {
	Manual RateTable `json:"manual" yaml:"manual"`
	Auto   RateTable `json:"auto" yaml:"auto"`
}

// LevelBonus: проценты комьюнити-бонуса минтинга по уровням (до 10).
// При CheckRank уровень N получает только аплайн с рангом ровно N.
type LevelBonus struct {
	CheckRank bool     `json:"checkRank" yaml:"checkRank"`
	Levels    []string `json:"levels" yaml:"levels"`
}

// MintingCap: лимит заработка активности в процентах от вложенной суммы.
type MintingCap struct {
	Percentage string `json:"percentage" yaml:"percentage"`
}

// SwitchingFee: комиссия за досрочную смену типа минтинга.
type SwitchingFee struct {
	Percentage string `json:"percentage" yaml:"percentage"`
}

// DepositCommission: проценты уровневой комиссии с депозита (индекс 0 = уровень 1).
type DepositCommission struct {
	Levels []string `json:"levels" yaml:"levels"`
}

// Snapshot: все документы, прочитанные один раз в начале события.
// Отсутствующий документ остаётся нулевым значением.
type Snapshot struct {
	DirectBonus       DirectBonus       `json:"directBonus" yaml:"directBonus"`
	BuildingBonus     BuildingBonus     `json:"buildingBonus" yaml:"buildingBonus"`
	MintingCommission MintingCommission `json:"mintingCommission" yaml:"mintingCommission"`
	LevelBonus        LevelBonus        `json:"levelBonus" yaml:"levelBonus"`
	MintingCap        MintingCap        `json:"mintingCap" yaml:"mintingCap"`
	SwitchingFee      SwitchingFee      `json:"switchingFee" yaml:"switchingFee"`
	DepositCommission DepositCommission `json:"depositCommission" yaml:"depositCommission"`
}

// target возвращает поле снимка для документа с данным именем.
func (s *Snapshot) target(name string) any {
	switch name {
	case NameDirectBonus:
		return &s.DirectBonus
	case NameBuildingBonus:
		return &s.BuildingBonus
	case NameMintingCommission:
		return &s.MintingCommission
	case NameLevelBonus:
		return &s.LevelBonus
	case NameMintingCap:
		return &s.MintingCap
	case NameSwitchingFee:
		return &s.SwitchingFee
	case NameDepositCommission:
		return &s.DepositCommission
	}
	return nil
}

// Known сообщает, известен ли документ.
func Known(name string) bool {
	return (&Snapshot{}).target(name) != nil
}

package main

import (
	"context"
	"fmt"

	"github.com/dojokit/beltway/core/rank"
)

// defaultRanks are the standard adult and youth belt ladders. Adult stripes
// get harder to earn as the belt darkens; the black belt holds up to 6.
var defaultRanks = []rank.NewRank{
	// adult ladder
	{Code: "BRANCA", Name: "Faixa Branca", ColorHex: "#FFFFFF", Category: rank.CategoryAdult, Ordinal: 1, MaxDegrees: 4, ClassesPerDegree: 20},
	{Code: "AZUL", Name: "Faixa Azul", ColorHex: "#0000FF", Category: rank.CategoryAdult, Ordinal: 2, MaxDegrees: 4, ClassesPerDegree: 25},
	{Code: "ROXA", Name: "Faixa Roxa", ColorHex: "#800080", Category: rank.CategoryAdult, Ordinal: 3, MaxDegrees: 4, ClassesPerDegree: 30},
	{Code: "MARROM", Name: "Faixa Marrom", ColorHex: "#8B4513", Category: rank.CategoryAdult, Ordinal: 4, MaxDegrees: 4, ClassesPerDegree: 35},
	{Code: "PRETA", Name: "Faixa Preta", ColorHex: "#000000", Category: rank.CategoryAdult, Ordinal: 5, MaxDegrees: 6, ClassesPerDegree: 40},

	// youth ladder
	{Code: "BRANCA_INF", Name: "Faixa Branca Infantil", ColorHex: "#FFFFFF", Category: rank.CategoryYouth, Ordinal: 1, MaxDegrees: 4, ClassesPerDegree: 15},
	{Code: "CINZA", Name: "Faixa Cinza", ColorHex: "#808080", Category: rank.CategoryYouth, Ordinal: 2, MaxDegrees: 4, ClassesPerDegree: 15},
	{Code: "AMARELA", Name: "Faixa Amarela", ColorHex: "#FFFF00", Category: rank.CategoryYouth, Ordinal: 3, MaxDegrees: 4, ClassesPerDegree: 15},
	{Code: "LARANJA", Name: "Faixa Laranja", ColorHex: "#FFA500", Category: rank.CategoryYouth, Ordinal: 4, MaxDegrees: 4, ClassesPerDegree: 15},
	{Code: "VERDE", Name: "Faixa Verde", ColorHex: "#008000", Category: rank.CategoryYouth, Ordinal: 5, MaxDegrees: 4, ClassesPerDegree: 15},
}

// seedRanks loads the default belt ladders, skipping codes that already exist.
func (cli *commandLine) seedRanks() error {
	ctx := context.Background()

	for _, nr := range defaultRanks {
		if _, err := cli.rankSvc.GetByCode(ctx, nr.Code); err == nil {
			continue
		} else if err != rank.ErrNotFound {
			return err
		}

		if _, err := cli.rankSvc.Create(ctx, nr); err != nil {
			return fmt.Errorf("seeding rank %s: %w", nr.Code, err)
		}
		fmt.Printf("created rank %s\n", nr.Code)
	}
	return nil
}

// Package content holds the localized tables and message copy used by the
// conversation engine and workers. LLM-generated content falls back to the
// deterministic strings defined here.
package content

import "strings"

// Option is a selectable value with its button payload and display name.
type Option struct {
	Code   string
	Telugu string
}

// Rashis lists the twelve zodiac signs in traditional order.
var Rashis = []Option{
	{"MESHA", "మేషం"},
	{"VRISHABHA", "వృషభం"},
	{"MITHUNA", "మిథునం"},
	{"KARKA", "కర్కాటకం"},
	{"SIMHA", "సింహం"},
	{"KANYA", "కన్య"},
	{"TULA", "తుల"},
	{"VRISCHIKA", "వృశ్చికం"},
	{"DHANU", "ధనుస్సు"},
	{"MAKARA", "మకరం"},
	{"KUMBHA", "కుంభం"},
	{"MEENA", "మీనం"},
}

// Nakshatras lists the 27 birth stars.
var Nakshatras = []Option{
	{"ASHWINI", "అశ్విని"}, {"BHARANI", "భరణి"}, {"KRITTIKA", "కృత్తిక"},
	{"ROHINI", "రోహిణి"}, {"MRIGASHIRA", "మృగశిర"}, {"ARDRA", "ఆర్ద్ర"},
	{"PUNARVASU", "పునర్వసు"}, {"PUSHYA", "పుష్యమి"}, {"ASHLESHA", "ఆశ్లేష"},
	{"MAGHA", "మఖ"}, {"PURVA_PHALGUNI", "పుబ్బ"}, {"UTTARA_PHALGUNI", "ఉత్తర"},
	{"HASTA", "హస్త"}, {"CHITRA", "చిత్త"}, {"SWATI", "స్వాతి"},
	{"VISHAKHA", "విశాఖ"}, {"ANURADHA", "అనూరాధ"}, {"JYESHTHA", "జ్యేష్ఠ"},
	{"MULA", "మూల"}, {"PURVA_ASHADHA", "పూర్వాషాఢ"}, {"UTTARA_ASHADHA", "ఉత్తరాషాఢ"},
	{"SHRAVANA", "శ్రవణం"}, {"DHANISHTA", "ధనిష్ఠ"}, {"SHATABHISHA", "శతభిష"},
	{"PURVA_BHADRA", "పూర్వాభాద్ర"}, {"UTTARA_BHADRA", "ఉత్తరాభాద్ర"}, {"REVATI", "రేవతి"},
}

// Deities lists the supported preferred deities.
var Deities = []Option{
	{"SHIVA", "శివుడు"},
	{"VISHNU", "విష్ణువు"},
	{"LAKSHMI", "లక్ష్మీదేవి"},
	{"DURGA", "దుర్గమ్మ"},
	{"GANESHA", "గణేశుడు"},
	{"HANUMAN", "హనుమంతుడు"},
	{"VENKATESWARA", "వేంకటేశ్వరుడు"},
	{"SUBRAHMANYA", "సుబ్రహ్మణ్యుడు"},
}

// Days lists the weekdays selectable as the auspicious day.
var Days = []Option{
	{"MONDAY", "సోమవారం"},
	{"TUESDAY", "మంగళవారం"},
	{"WEDNESDAY", "బుధవారం"},
	{"THURSDAY", "గురువారం"},
	{"FRIDAY", "శుక్రవారం"},
	{"SATURDAY", "శనివారం"},
	{"SUNDAY", "ఆదివారం"},
}

// Categories lists the sankalp intent categories.
var Categories = []Option{
	{"FAMILY", "కుటుంబ క్షేమం"},
	{"HEALTH", "ఆరోగ్యం"},
	{"CAREER", "ఉద్యోగం"},
	{"WEALTH", "ధనం"},
	{"EDUCATION", "విద్య"},
	{"PEACE", "మనశ్శాంతి"},
}

// Tier describes a pricing tier. Amount is in minor units (cents); Meals is
// display copy only and never feeds the ledger split.
type Tier struct {
	Code   string
	Amount int64
	Meals  int
}

// Tiers lists the selectable offering tiers.
var Tiers = []Tier{
	{"S15", 1500, 10},
	{"S30", 3000, 25},
	{"S50", 5000, 40},
}

// TeluguMonths maps month index (1-12) to its Telugu name.
var TeluguMonths = []string{
	"జనవరి", "ఫిబ్రవరి", "మార్చి", "ఏప్రిల్", "మే", "జూన్",
	"జూలై", "ఆగస్టు", "సెప్టెంబర్", "అక్టోబర్", "నవంబర్", "డిసెంబర్",
}

// FindOption resolves a code or a localized display name (case-insensitive)
// against a table. Returns the canonical code and whether it matched.
func FindOption(table []Option, input string) (string, bool) {
	needle := strings.TrimSpace(input)
	if needle == "" {
		return "", false
	}
	for _, opt := range table {
		if strings.EqualFold(opt.Code, needle) || opt.Telugu == needle {
			return opt.Code, true
		}
	}
	return "", false
}

// OptionName returns the localized name for a code, or the code itself.
func OptionName(table []Option, code string) string {
	for _, opt := range table {
		if opt.Code == code {
			return opt.Telugu
		}
	}
	return code
}

// TierByCode returns the tier for a code like "S30".
func TierByCode(code string) (Tier, bool) {
	for _, t := range Tiers {
		if strings.EqualFold(t.Code, code) {
			return t, true
		}
	}
	return Tier{}, false
}

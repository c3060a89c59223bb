package content

import (
	"fmt"
	"time"
)

// Welcome greets a first-time user before the rashi question.
func Welcome(name string) string {
	if name == "" {
		return "🙏 నమస్కారం! శుభమస్తు సేవకు స్వాగతం.\n\nమీ రాశి ఎంచుకోండి:"
	}
	return fmt.Sprintf("🙏 నమస్కారం %s గారు! శుభమస్తు సేవకు స్వాగతం.\n\nమీ రాశి ఎంచుకోండి:", name)
}

const (
	AskNakshatra = "మీ జన్మ నక్షత్రం తెలిస్తే ఎంచుకోండి. తెలియకపోతే దాటవేయవచ్చు."
	AskBirthTime = "మీ జనన సమయం తెలిస్తే పంపండి (ఉదా: 06:30 లేదా 6:30 am). తెలియకపోతే దాటవేయవచ్చు."
	AskDeity     = "మీ ఇష్టదైవం ఎవరు?"
	AskDay       = "మీకు అనుకూలమైన వారం ఏది? ఆ రోజున ప్రత్యేక సందేశాలు వస్తాయి."

	MainMenuReset = "ప్రధాన మెనూకి తిరిగి వచ్చారు. రోజువారీ సందేశాలు కొనసాగుతాయి. 🙏"

	TyagamPrompt = "ఈ సంకల్పానికి చిన్న త్యాగం జోడించాలనుకుంటున్నారా?\n\nత్యాగంతో చేసిన సంకల్పం మరింత ఫలవంతం అవుతుంది."

	FreePathBlessing = "మీ సంకల్పం స్వీకరించబడింది. 🙏\n\nఈ వారం మీ కోరిక కోసం ప్రార్థనలు జరుగుతాయి.\n\nశుభమస్తు!"

	PaymentFailedRetry = "చెల్లింపు విఫలమైంది. దయచేసి మళ్ళీ ప్రయత్నించండి:"
	PaymentLinkRetryNA = "చెల్లింపు విఫలమైంది. దయచేసి కాసేపటి తర్వాత మళ్ళీ ప్రయత్నించండి."
	PaymentLinkFailed  = "క్షమించండి, ప్రస్తుతం చెల్లింపు లింక్ సృష్టించలేకపోయాం. దయచేసి కాసేపటి తర్వాత ప్రయత్నించండి."

	ExpiredNotice = "మీ చెల్లింపు లింక్ గడువు ముగిసింది. వచ్చే శుభ దినాన మళ్ళీ సంకల్పం చేసుకోవచ్చు. 🙏"

	UnknownInputReprompt = "క్షమించండి, అర్థం కాలేదు. పైన ఉన్న ఎంపికలలో ఒకటి ఎంచుకోండి. (ప్రధాన మెనూకి \"0\" పంపండి)"

	PassiveAck = "🙏 శుభమస్తు! మీ రోజువారీ సందేశాలు కొనసాగుతాయి. సంకల్ప చరిత్ర కోసం \"history\" పంపండి."
)

// CategoryPrompt opens the weekly sankalp flow.
func CategoryPrompt(name string) string {
	prefix := "🙏 ఈరోజు మీ శుభ దినం!"
	if name != "" {
		prefix = fmt.Sprintf("🙏 %s గారు, ఈరోజు మీ శుభ దినం!", name)
	}
	return prefix + "\n\nఈ వారం మీ సంకల్పం దేని కోసం?"
}

// TierPrompt asks for the offering tier after TYAGAM_YES.
func TierPrompt() string {
	msg := "మీ త్యాగం ఎంత ఉండాలి?\n"
	for _, t := range Tiers {
		msg += fmt.Sprintf("\n💰 $%d — %d కుటుంబాలకు అన్నదానం", t.Amount/100, t.Meals)
	}
	return msg
}

// PaymentLinkMessage carries the hosted payment URL.
func PaymentLinkMessage(shortURL string) string {
	return fmt.Sprintf("మీ సంకల్పం సిద్ధం. ఈ లింక్ ద్వారా చెల్లించండి:\n\n%s\n\nచెల్లింపు పూర్తయ్యాక ధృవీకరణ వస్తుంది. 🙏", shortURL)
}

// ClosureMessage confirms a captured payment.
func ClosureMessage(categoryCode string) string {
	return fmt.Sprintf("✅ మీ సంకల్పం స్వీకరించబడింది!\n\n%s కోసం మీ త్యాగం అంకితం చేయబడింది. రేపు ఉదయం మీ పేరిట అన్నదానం జరుగుతుంది.\n\nశుభమస్తు 🙏", OptionName(Categories, categoryCode))
}

// ReceiptMessage summarizes the paid sankalp.
func ReceiptMessage(amount int64, currency, categoryCode string) string {
	return fmt.Sprintf("🧾 రసీదు\n\nవర్గం: %s\nమొత్తం: %s %.2f\n\nమీ సహకారానికి ధన్యవాదాలు. 🙏",
		OptionName(Categories, categoryCode), currency, float64(amount)/100)
}

// FollowUpDay3 is the mid-week status update after payment.
func FollowUpDay3() string {
	return "🙏 మీ సంకల్పం కోసం ప్రార్థనలు కొనసాగుతున్నాయి.\n\nమీ పేరిట అన్నదాన సేవ జరిగింది. త్వరలో వివరాలు పంపుతాము."
}

// FollowUpDay7 closes the follow-up chain with the impact note.
func FollowUpDay7(meals int) string {
	if meals > 0 {
		return fmt.Sprintf("🙏 మీ సంకల్ప ఫలితం:\n\n🍲 మీ త్యాగంతో %d కుటుంబాలకు భోజనం అందింది.\n\nసర్వే జనాః సుఖినో భవంతు", meals)
	}
	return "🙏 మీ సంకల్ప వారం పూర్తయింది.\n\nమీ త్యాగం ఎందరో కుటుంబాలకు చేరింది.\n\nసర్వే జనాః సుఖినో భవంతు"
}

// DailyHoroscopeFallback is the deterministic Day-N message used when the
// LLM is unavailable.
func DailyHoroscopeFallback(rashiCode, deityCode string) string {
	return fmt.Sprintf("🌅 శుభోదయం!\n\n%s రాశి వారికి ఈరోజు శుభ ఫలితాలు. %s అనుగ్రహం మీపై ఉంటుంది.\n\nశుభమస్తు 🙏",
		OptionName(Rashis, rashiCode), OptionName(Deities, deityCode))
}

// NurtureLightBlessing is the week-2 low-intensity touch.
const NurtureLightBlessing = "🙏 ఈ వారం మీ ఇంట శాంతి, సౌభాగ్యం నెలకొనాలని ప్రార్థిస్తున్నాం.\n\nశుభమస్తు"

// NurtureSilentWisdom is the week-3 reflective message.
const NurtureSilentWisdom = "🕉️ ధర్మో రక్షతి రక్షితః\n\nధర్మాన్ని కాపాడితే ధర్మం మనల్ని కాపాడుతుంది."

// SankalpNudge returns the solicitation copy for an intensity level.
func SankalpNudge(intensity string) string {
	switch intensity {
	case "GENTLE":
		return "🙏 రేపు మీ శుభ దినం. చిన్న సంకల్పం చేసుకోవాలనుకుంటే సిద్ధంగా ఉన్నాం."
	case "MEDIUM":
		return "🙏 మీ శుభ దినం వస్తోంది. గత సంకల్పాల ఫలం మీతో ఉంది — ఈసారి కూడా కొనసాగిద్దామా?"
	case "STRONG":
		return "🙏 మీ నిష్ఠ చాలా మందికి ఆదర్శం. ఈ శుభ దినాన మీ సంకల్పం మరింత బలం పొందుతుంది."
	case "MAHA":
		return "🔱 మహా సంకల్ప ఘడియ వచ్చింది. ఈ చక్రంలో మీ అంకితభావానికి ఇది పరాకాష్ఠ."
	case "LEADERSHIP":
		return "🙏 మీరు మా అంకిత భక్తులలో ఒకరు. మీ సంకల్పం ఎందరికో దారి చూపుతుంది."
	case "COLLECTIVE":
		return "🙏 ఈ వారం భక్తులందరూ కలిసి సంకల్పం చేస్తున్నారు. మీరూ భాగం అవ్వండి."
	default:
		return NurtureLightBlessing
	}
}

// SevaProofCaption builds the Telugu caption for proof-of-delivery media.
func SevaProofCaption(temple, location string, sevaDate time.Time, families int) string {
	dateTelugu := fmt.Sprintf("%d %s %d", sevaDate.Day(), TeluguMonths[int(sevaDate.Month())-1], sevaDate.Year())
	return fmt.Sprintf(`🙏 మీ అన్నదాన సేవ పూర్తయింది!

📍 %s
   %s

📅 %s
🍲 %d కుటుంబాలకు భోజనం అందించబడింది

మీ త్యాగానికి ధన్యవాదాలు 🙏

సర్వే జనాః సుఖినో భవంతు`, temple, location, dateTelugu, families)
}

// BirthdayWish greets a user on their date of birth.
func BirthdayWish(name string) string {
	return fmt.Sprintf("🎂 జన్మదిన శుభాకాంక్షలు %s గారు!\n\nమీ జీవితం ఆయురారోగ్య ఐశ్వర్యాలతో నిండాలని కోరుకుంటున్నాం.\n\n- శుభమస్తు పరివారం 🙏", name)
}

// AnniversaryWish greets a user on their wedding anniversary.
func AnniversaryWish(name string) string {
	return fmt.Sprintf("💍 పెళ్లిరోజు శుభాకాంక్షలు %s గారు!\n\nమీ దాంపత్యం కలకాలం సుఖసంతోషాలతో వర్ధిల్లాలి.\n\n- శుభమస్తు పరివారం 🙏", name)
}

// WeeklyImpactBroadcast is the Sunday community scoreboard.
func WeeklyImpactBroadcast(weekMeals, lifetimeMeals, devotees int) string {
	return fmt.Sprintf(`📿 ఈ వారం శుభమస్తు సేవ

🍲 ఈ వారం %d కుటుంబాలకు అన్నదానం
🙏 మొత్తం %d కుటుంబాలకు సేవ అందింది
👥 %d భక్తులు కలిసి నడుస్తున్నారు

సర్వే జనాః సుఖినో భవంతు`, weekMeals, lifetimeMeals, devotees)
}

// WeeklyImpactPersonal is the follow-up sent alongside the scoreboard
// template when the user has personal verified impact.
func WeeklyImpactPersonal(meals, devotionalCycle int) string {
	msg := fmt.Sprintf("🙏 మీ ప్రయాణం కొనసాగుతోంది. మీ మొదటి సంకల్పం నుండి %d కుటుంబాలకు మీ అండ అందింది.", meals)
	switch {
	case devotionalCycle >= 3:
		msg += "\n\nమీరు మా అంకిత భక్తులలో ఒకరు. 🙏"
	case devotionalCycle >= 2:
		msg += "\n\nమీరు మా ప్రధాన భక్త బృందంలో భాగం."
	}
	return msg
}
